package domain

import "errors"

var (
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrSubmissionInFlight = errors.New("submission_in_flight")
	ErrReadOnly           = errors.New("onboarding_read_only")
	ErrStepMismatch       = errors.New("step_mismatch")
	ErrUnknownStep        = errors.New("unknown_step")
	ErrInvalidUser        = errors.New("invalid_user")
)

// ValidationError is a user-input problem caught before any remote call.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Code
	}
	return e.Field + ": " + e.Code
}

func (e *ValidationError) ErrorCode() string {
	return e.Code
}

// RemoteError wraps a failed call to a collaborator (auth, database,
// mail). Message is safe to show to the user.
type RemoteError struct {
	Op      string
	Message string
	Err     error
}

func NewRemoteError(op, message string, err error) *RemoteError {
	return &RemoteError{Op: op, Message: message, Err: err}
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) ErrorCode() string {
	return "remote_error"
}
