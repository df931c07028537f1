package gate

import (
	"time"

	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
)

// View is the client-facing snapshot of a gate.
type View struct {
	State       State         `json:"state"`
	Status      domain.Status `json:"status"`
	Visible     bool          `json:"visible"`
	Interactive bool          `json:"interactive"`
	// RefreshRequired tells the caller to re-render the surrounding app
	// because its interaction mode changed.
	RefreshRequired bool        `json:"refreshRequired,omitempty"`
	Pending         bool        `json:"pending"`
	Step            *StepView   `json:"step,omitempty"`
	Data            domain.Data `json:"data,omitempty"`
	Resend          *ResendView `json:"resend,omitempty"`
	RemoteSynced    *bool       `json:"remoteSynced,omitempty"`
}

type StepView struct {
	ID       domain.StepID `json:"id"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Progress float64       `json:"progress"`
	// AdvanceAfterMs is set right after a step that asks the client to
	// linger on its confirmation.
	AdvanceAfterMs int64      `json:"advanceAfterMs,omitempty"`
	Screen         steps.View `json:"screen"`
}

// ResendView is the verify-email resend sub-state.
type ResendView struct {
	Pending bool       `json:"pending"`
	Error   string     `json:"error,omitempty"`
	SentAt  *time.Time `json:"sentAt,omitempty"`
}
