// Package refreshtokens declares the server-side repository contract for
// refresh-token rotation chains in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

// Repository stores refresh tokens by keyed hash. Tokens are never deleted by
// rotation; they are marked used or revoked.
type Repository interface {
	// Create inserts a new chain link.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByHashForUpdate loads the token with the given hash and locks its
	// row for the rest of the transaction. common.ErrorNotFound when absent.
	FindByHashForUpdate(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// MarkUsed flips is_used on a token that is still unused. Returns
	// common.ErrorNotFound if no unused row matched.
	MarkUsed(ctx context.Context, id string, at time.Time) error

	// RevokeFamily revokes every not-yet-revoked token of the family.
	RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error)

	// RevokeAllForUser revokes every not-yet-revoked token the user owns.
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)

	// DeleteExpiredBefore removes tokens whose expiry is before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
