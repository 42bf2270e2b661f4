// Package sessions stores one login session per refresh-token family.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	// Touch records activity on an active session and moves its expiry to
	// the new tip's expiry.
	Touch(ctx context.Context, familyID string, at, expiresAt time.Time) error
	// Deactivate ends an active session. Ending an ended session is a no-op.
	Deactivate(ctx context.Context, familyID, reason string, at time.Time) error
	DeactivateAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
	// ListActive returns sessions that are active and unexpired at now,
	// most recently used first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	// Get returns the session of a family, active or not.
	Get(ctx context.Context, familyID string) (*models.Session, error)
	// ExpireStale ends active sessions whose expiry has passed.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
