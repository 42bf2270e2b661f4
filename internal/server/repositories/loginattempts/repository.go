// Package loginattempts is the append-only login audit log used for rate
// limiting.
package loginattempts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

// FailureStats summarizes counted failures for one email inside a window.
// Oldest is nil when Count is zero.
type FailureStats struct {
	Count  int
	Oldest *time.Time
}

type Repository interface {
	Record(ctx context.Context, a *models.LoginAttempt) error
	// FailuresSince counts failed attempts for email after since, excluding
	// attempts that were themselves rejected by the rate limiter.
	FailuresSince(ctx context.Context, email string, since time.Time) (FailureStats, error)
	// DeleteBefore applies the retention policy.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
