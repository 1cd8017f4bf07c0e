// Package common defines shared constants and sentinel errors used across
// the store, service and transport layers of authcore. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable reports that the store could not be reached within
	// the configured wait (pool exhausted, timeout, connection refused).
	// It is retryable and never an authentication failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Service-level errors (generic/internal flow control).
	ErrorInternal  = errors.New("internal error")
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("too many requests")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrFaceMismatch       = errors.New("face verification failed")

	// Token errors.
	ErrMissingToken     = errors.New("missing authorization token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInsufficientRole = errors.New("insufficient permissions")

	// OTP errors.
	ErrOtpNotFound = errors.New("otp not found")
	ErrOtpExpired  = errors.New("otp expired")
)
