package domain

import (
	"context"
	"time"
)

type Service interface {
	// GetSession resolves a cookie session token or a bearer JWT to the
	// current user, re-reading the user row every time.
	GetSession(ctx context.Context, rawToken string) (*SessionUser, error)
	GetUser(ctx context.Context, userID string) (*SessionUser, error)
	ResendVerification(ctx context.Context, userID string) error
	ConfirmEmail(ctx context.Context, rawToken string) (*SessionUser, error)

	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	IssueSession(ctx context.Context, req IssueSessionRequest) (*IssuedSession, error)
}

type CreateUserRequest struct {
	Email       string
	DisplayName string
}

type IssueSessionRequest struct {
	UserID    string
	UserAgent string
	IPAddress string
}

type IssuedSession struct {
	RawToken  string
	ExpiresAt time.Time
}
