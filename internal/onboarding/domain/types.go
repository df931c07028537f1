// Package domain defines the onboarding flow vocabulary shared by the
// progress store, the step components and the completion gate.
package domain

import (
	"context"
	"maps"
)

type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusDeferred   Status = "deferred"
)

// ParseStatus accepts only the four known statuses.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusDeferred:
		return Status(raw), true
	default:
		return "", false
	}
}

type StepID string

const (
	StepVerifyEmail       StepID = "verify-email"
	StepPlanSelection     StepID = "plan-selection"
	StepOrganizationSetup StepID = "organization-setup"
	StepTeamInvitation    StepID = "team-invitation"
	StepProfileCompletion StepID = "profile-completion"
	StepFinalConfirmation StepID = "final-confirmation"
)

// Steps is the fixed step order.
var Steps = []StepID{
	StepVerifyEmail,
	StepPlanSelection,
	StepOrganizationSetup,
	StepTeamInvitation,
	StepProfileCompletion,
	StepFinalConfirmation,
}

// ClampIndex bounds index to [0, total-1].
func ClampIndex(index, total int) int {
	if total <= 0 || index < 0 {
		return 0
	}
	if index > total-1 {
		return total - 1
	}
	return index
}

// IndexOf returns the position of id in Steps, or -1.
func IndexOf(id StepID) int {
	for i, step := range Steps {
		if step == id {
			return i
		}
	}
	return -1
}

// Data keys written by the steps.
const (
	KeyEmail            = "email"
	KeyEmailVerified    = "emailVerified"
	KeySelectedPlan     = "selectedPlan"
	KeyBillingCycle     = "billingCycle"
	KeyPlanPrice        = "planPrice"
	KeyPlanCurrency     = "planCurrency"
	KeySetupKind        = "setupKind"
	KeyOrganizationID   = "organizationId"
	KeyOrganizationName = "organizationName"
	KeyOrganizationSlug = "organizationSlug"
	KeyOrganizationRole = "organizationRole"
	KeyTeamInvites      = "teamInvites"
	KeyInvitesSent      = "invitesSent"
	KeyInvitesFailed    = "invitesFailed"
	KeyFullName         = "fullName"
	KeyJobTitle         = "jobTitle"
	KeyPhone            = "phone"
	KeyTimezone         = "timezone"
	KeyRemoteSynced     = "remoteSynced"
)

// Data is the accumulated bag of step results.
type Data map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty bag.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	maps.Copy(out, d)
	return out
}

// Merge returns {...d, ...patch} without touching either input.
func (d Data) Merge(patch Data) Data {
	out := d.Clone()
	maps.Copy(out, patch)
	return out
}

func (d Data) String(key string) string {
	value, _ := d[key].(string)
	return value
}

func (d Data) Bool(key string) bool {
	value, _ := d[key].(bool)
	return value
}

// Snapshot is the persisted progress of one user.
type Snapshot struct {
	Status Status `json:"status"`
	Index  int    `json:"index"`
	Data   Data   `json:"data"`
}

func DefaultSnapshot() Snapshot {
	return Snapshot{Status: StatusNotStarted, Index: 0, Data: Data{}}
}

// Patch lists the fields a Save writes. Nil fields are left alone.
type Patch struct {
	Status *Status
	Index  *int
	Data   Data
}

func StatusPatch(status Status) Patch {
	return Patch{Status: &status}
}

func IndexPatch(index int) Patch {
	return Patch{Index: &index}
}

func DataPatch(data Data) Patch {
	if data == nil {
		data = Data{}
	}
	return Patch{Data: data}
}

// ProgressStore mirrors in-memory flow state so it survives restarts. It
// never returns errors; backend failures are logged and the caller's
// in-memory state stays authoritative.
type ProgressStore interface {
	Load(ctx context.Context, userID string) Snapshot
	Save(ctx context.Context, userID string, patch Patch)
	// Clear removes status, step and data.
	Clear(ctx context.Context, userID string)
	// ClearProgress removes step and data, keeping status.
	ClearProgress(ctx context.Context, userID string)
}
