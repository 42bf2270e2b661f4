// Package common defines the error taxonomy and small helpers shared by the
// token service, its transports and the operator CLI. Callers should use
// errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Malformed input, rejected before any state changes.
	ErrorValidation = errors.New("validation error")

	// Login rejections. Unknown email, wrong password and inactive account
	// all surface as ErrInvalidCredentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts")

	// Token rejections.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTheftDetected is returned when an already rotated refresh token is
	// presented again. It matches ErrTokenRevoked as well.
	ErrTheftDetected = fmt.Errorf("%w: refresh token reuse detected", ErrTokenRevoked)
)

// RateLimitError carries a coarse retry hint for ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil || e.RetryAfter <= 0 {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Reason returns the taxonomy label of err, used for logging and transports.
// Order matters: theft is checked before the broader revoked label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTheftDetected):
		return "theft_detected"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrorValidation):
		return "validation"
	case errors.Is(err, ErrorAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrorNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
