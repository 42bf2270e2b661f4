package loginattempts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, a *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, success, failure_reason, ip_address, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var reason sql.NullString
	if a.FailureReason != "" {
		reason = sql.NullString{String: a.FailureReason, Valid: true}
	}
	if err := r.db.QueryRowContext(ctx, query, a.Email, a.Success, reason, a.IPAddress, a.AttemptedAt).Scan(&a.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FailuresSince(ctx context.Context, email string, since time.Time) (FailureStats, error) {
	query := `
		SELECT COUNT(*), MIN(attempted_at)
		FROM login_attempts
		WHERE email = $1
		  AND NOT success
		  AND failure_reason IS DISTINCT FROM $2
		  AND attempted_at > $3
	`
	var (
		stats  FailureStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, query, email, models.FailureRateLimited, since).Scan(&stats.Count, &oldest); err != nil {
		return FailureStats{}, fmt.Errorf("db error: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		stats.Oldest = &t
	}
	return stats, nil
}

func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
