package models

import "time"

// Failure reasons stored on login attempts.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureRateLimited        = "rate_limited"
	FailureInternal           = "internal"
)

// LoginAttempt is an append-only audit row for one login call.
type LoginAttempt struct {
	ID            int64
	Email         string
	Success       bool
	FailureReason string
	IPAddress     string
	AttemptedAt   time.Time
}
