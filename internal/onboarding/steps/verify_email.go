package steps

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"go.uber.org/zap"
)

// Verifier is implemented by the verify-email step for its side actions.
type Verifier interface {
	Resend(ctx context.Context, user authdomain.SessionUser) error
	WaitForConfirmation(ctx context.Context, userID string) (*authdomain.SessionUser, error)
}

type VerifyEmail struct {
	auth        authdomain.Service
	autoAdvance time.Duration
	log         *zap.Logger
	newBackOff  func() backoff.BackOff
}

var _ Verifier = (*VerifyEmail)(nil)

func NewVerifyEmail(auth authdomain.Service, autoAdvance time.Duration, log *zap.Logger) *VerifyEmail {
	return &VerifyEmail{
		auth:        auth,
		autoAdvance: autoAdvance,
		log:         log,
		newBackOff:  newVerificationBackOff,
	}
}

func newVerificationBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	// the request context bounds the wait
	bo.MaxElapsedTime = 0
	return bo
}

func (s *VerifyEmail) ID() domain.StepID { return domain.StepVerifyEmail }

func (s *VerifyEmail) Render(user authdomain.SessionUser, data domain.Data) View {
	return View{
		Step:  s.ID(),
		Title: "Verify your email",
		Fields: map[string]any{
			domain.KeyEmail:         user.Email,
			domain.KeyEmailVerified: user.EmailConfirmed(),
		},
		Actions: []string{"check", "resend"},
	}
}

// Submit re-reads the user so a confirmation made in another tab counts.
func (s *VerifyEmail) Submit(ctx context.Context, sc StepContext, _ json.RawMessage) (Outcome, error) {
	user, err := s.auth.GetUser(ctx, sc.User.ID)
	if err != nil {
		return Outcome{}, domain.NewRemoteError("session.get", "We could not refresh your session. Try again.", err)
	}
	if !user.EmailConfirmed() {
		return Outcome{}, domain.NewValidationError(domain.KeyEmail, "email_not_confirmed", "Confirm your email address to continue.")
	}
	return Outcome{
		Patch: domain.Data{
			domain.KeyEmail:         user.Email,
			domain.KeyEmailVerified: true,
		},
		AdvanceAfter: s.autoAdvance,
		User:         user,
	}, nil
}

func (s *VerifyEmail) Resend(ctx context.Context, user authdomain.SessionUser) error {
	err := s.auth.ResendVerification(ctx, user.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authdomain.ErrResendThrottled), errors.Is(err, authdomain.ErrEmailAlreadyConfirmed):
		return err
	default:
		return domain.NewRemoteError("verification.resend", "We could not send the email. Try again in a moment.", err)
	}
}

// WaitForConfirmation polls the user record until the address is confirmed
// or ctx ends.
func (s *VerifyEmail) WaitForConfirmation(ctx context.Context, userID string) (*authdomain.SessionUser, error) {
	var confirmed *authdomain.SessionUser
	err := backoff.Retry(func() error {
		user, err := s.auth.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, authdomain.ErrUserNotFound) {
				return backoff.Permanent(err)
			}
			s.log.Debug("verification poll failed", zap.Error(err))
			return err
		}
		if !user.EmailConfirmed() {
			return errEmailPending
		}
		confirmed = user
		return nil
	}, backoff.WithContext(s.newBackOff(), ctx))
	if err != nil {
		if errors.Is(err, errEmailPending) || ctx.Err() != nil {
			return nil, domain.NewValidationError(domain.KeyEmail, "email_not_confirmed", "Still waiting for you to confirm your email.")
		}
		return nil, domain.NewRemoteError("session.get", "We could not refresh your session. Try again.", err)
	}
	return confirmed, nil
}

var errEmailPending = errors.New("email_pending")
