package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
}

type VerificationRepository interface {
	CreateVerification(ctx context.Context, v *EmailVerification) error
	FindVerificationByTokenHash(ctx context.Context, tokenHash string) (*EmailVerification, error)
	// ConfirmEmail consumes the token and stamps the user in one transaction.
	ConfirmEmail(ctx context.Context, verificationID, userID snowflake.ID, at time.Time) error
}
