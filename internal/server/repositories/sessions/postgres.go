package sessions

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO user_sessions (id, family_id, user_id, device_label, ip_address, user_agent,
		                           created_at, last_activity_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.FamilyID, s.UserID, s.DeviceLabel, s.IPAddress, s.UserAgent,
		s.CreatedAt, s.LastActivityAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, familyID string, at, expiresAt time.Time) error {
	query := `
		UPDATE user_sessions
		SET last_activity_at = $2, expires_at = $3
		WHERE family_id = $1 AND is_active
	`
	if _, err := r.db.ExecContext(ctx, query, familyID, at, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, familyID, reason string, at time.Time) error {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $3, end_reason = $2
		WHERE family_id = $1 AND is_active
	`
	if _, err := r.db.ExecContext(ctx, query, familyID, reason, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $3, end_reason = $2
		WHERE user_id = $1 AND is_active
	`
	return r.exec(ctx, query, userID, reason, at)
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $1, end_reason = $2
		WHERE is_active AND expires_at <= $1
	`
	return r.exec(ctx, query, now, common.ReasonSessionExpiry)
}

const selectSession = `
		SELECT id, family_id, user_id, device_label, ip_address, user_agent,
		       created_at, last_activity_at, expires_at, is_active, ended_at, end_reason
		FROM user_sessions`

func (r *PostgresRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	query := selectSession + `
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY last_activity_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		var s models.Session
		if err := scan(rows, &s); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, familyID string) (*models.Session, error) {
	query := selectSession + `
		WHERE family_id = $1
	`
	s := &models.Session{}
	if err := scan(r.db.QueryRowContext(ctx, query, familyID), s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner, s *models.Session) error {
	return row.Scan(&s.ID, &s.FamilyID, &s.UserID, &s.DeviceLabel, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.IsActive, &s.EndedAt, &s.EndReason)
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
