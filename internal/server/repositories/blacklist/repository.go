// Package blacklist persists access-token identifiers revoked before their
// natural expiry.
package blacklist

import (
	"context"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

type Repository interface {
	// Add inserts the entry; an existing jti is left untouched. The bool
	// reports whether a row was inserted.
	Add(ctx context.Context, e *models.BlacklistEntry) (bool, error)
	// Exists is the hot-path lookup by primary key.
	Exists(ctx context.Context, jti string) (bool, error)
	// DeleteExpired prunes entries whose token has expired by now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
