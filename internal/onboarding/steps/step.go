// Package steps implements the six onboarding screens. Each step reads the
// accumulated data, performs its side effect and reports a patch to merge.
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

// View is what a client needs to draw a step.
type View struct {
	Step    domain.StepID  `json:"step"`
	Title   string         `json:"title"`
	Fields  map[string]any `json:"fields,omitempty"`
	Options any            `json:"options,omitempty"`
	Actions []string       `json:"actions,omitempty"`
}

// StepContext is the input shared by every Submit call.
type StepContext struct {
	User authdomain.SessionUser
	Data domain.Data
}

// Outcome is a successful submission.
type Outcome struct {
	Patch domain.Data
	// AdvanceAfter asks the client to hold the confirmation on screen
	// before showing the next step.
	AdvanceAfter time.Duration
	// Complete ends the flow instead of advancing.
	Complete     bool
	RemoteSynced bool
	// User replaces the cached session user when set.
	User *authdomain.SessionUser
}

type Step interface {
	ID() domain.StepID
	Render(user authdomain.SessionUser, data domain.Data) View
	// Submit performs the step's remote effect. A returned error means no
	// state changed and the flow stays on this step.
	Submit(ctx context.Context, sc StepContext, raw json.RawMessage) (Outcome, error)
}

// Registry maps step ids to their implementation.
type Registry struct {
	steps map[domain.StepID]Step
}

func NewRegistry(steps ...Step) *Registry {
	r := &Registry{steps: make(map[domain.StepID]Step, len(steps))}
	for _, step := range steps {
		r.steps[step.ID()] = step
	}
	return r
}

func (r *Registry) Get(id domain.StepID) (Step, bool) {
	step, ok := r.steps[id]
	return step, ok
}

func decodeInput(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("", "invalid_payload", "The submitted form could not be read.")
	}
	return nil
}
