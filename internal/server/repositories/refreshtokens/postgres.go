// Package refreshtokens provides a PostgreSQL-backed repository for refresh
// token chains.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new refresh token row.
func (r *PostgresRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, parent_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.FamilyID, t.ParentID, t.IssuedAt, t.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByHashForUpdate returns the row for tokenHash, locked FOR UPDATE.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) FindByHashForUpdate(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, family_id, parent_id, is_used, is_revoked,
		       revocation_reason, issued_at, expires_at, used_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`
	t := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID, &t.ParentID, &t.IsUsed, &t.IsRevoked,
		&t.RevocationReason, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt, &t.RevokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// MarkUsed sets is_used on an unused token.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET is_used = TRUE, used_at = $2
		WHERE id = $1 AND NOT is_used
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// RevokeFamily revokes every live or used token in the family.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revocation_reason = $2, revoked_at = $3
		WHERE family_id = $1 AND NOT is_revoked
	`
	return r.exec(ctx, query, familyID, reason, at)
}

// RevokeAllForUser revokes every token owned by userID.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revocation_reason = $2, revoked_at = $3
		WHERE user_id = $1 AND NOT is_revoked
	`
	return r.exec(ctx, query, userID, reason, at)
}

// DeleteExpiredBefore removes tokens that expired before cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	return r.exec(ctx, query, cutoff)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
