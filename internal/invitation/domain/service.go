package domain

import (
	"context"
	"errors"
)

// SendRequest is one invitation email. Role is the lowercase role shown on
// the onboarding team step.
type SendRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Role             string `json:"role" validate:"required,oneof=member admin"`
	OrganizationName string `json:"organizationName" validate:"required"`
	InviterName      string `json:"inviterName"`
}

// DispatchResult lists per-recipient outcomes of a best-effort batch.
type DispatchResult struct {
	Sent   []string `json:"sent"`
	Failed []string `json:"failed"`
}

type Service interface {
	Send(ctx context.Context, req SendRequest) error
	// SendAll mails every invite and never fails as a whole; individual
	// failures are logged and reported in the result.
	SendAll(ctx context.Context, reqs []SendRequest) DispatchResult
}

var (
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidOrganization = errors.New("invalid_organization")
)
