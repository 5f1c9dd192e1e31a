package service

import "errors"

// Service errors. Handlers map them to HTTP status codes; everything that
// is not one of these is an internal error.
var (
	// ErrUnauthorized covers every authentication failure. Callers must
	// not learn which check failed.
	ErrUnauthorized      = errors.New("unauthorized")
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	// ErrInvalidRecoveryCode is returned by ConfirmNewPassword for a code
	// that does not verify.
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
)
