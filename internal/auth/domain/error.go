package domain

import "errors"

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrInvalidSession        = errors.New("invalid session")
	ErrInvalidVerification   = errors.New("invalid_verification_token")
	ErrEmailAlreadyConfirmed = errors.New("email_already_confirmed")
	ErrResendThrottled       = errors.New("verification_resend_throttled")
)
