package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// DeviceInfo is the client metadata recorded with a new session.
type DeviceInfo struct {
	Label     string
	IPAddress string
	UserAgent string
}

// SessionRegistry tracks one session per refresh-token family. Ending a
// session always revokes the family's tokens in the same transaction.
type SessionRegistry struct {
	runner dbx.TxRunner
	repos  repomanager.RepositoryManager
	clock  timex.Clock
	log    logging.Logger
}

func NewSessionRegistry(runner dbx.TxRunner, repos repomanager.RepositoryManager, clock timex.Clock, log logging.Logger) *SessionRegistry {
	return &SessionRegistry{runner: runner, repos: repos, clock: clock, log: log.With("module", "sessions")}
}

// List returns the user's active, unexpired sessions.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]models.Session, error) {
	list, err := r.repos.Sessions(r.runner.Conn()).ListActive(ctx, userID, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return list, nil
}

// Get returns one session owned by userID, active or not. IsActive is false
// once the session has expired, even before the sweep ends it. Sessions of
// other users are reported as not found.
func (r *SessionRegistry) Get(ctx context.Context, userID, familyID string) (*models.Session, error) {
	return r.owned(ctx, r.runner.Conn(), userID, familyID)
}

// Revoke signs out one device: the family's tokens are revoked and the
// session ends. Revoking an already ended session succeeds.
func (r *SessionRegistry) Revoke(ctx context.Context, userID, familyID, reason string) error {
	err := r.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.owned(ctx, tx, userID, familyID); err != nil {
			return err
		}
		return r.endFamily(ctx, tx, familyID, reason, r.clock.Now())
	})
	if err != nil {
		return err
	}
	r.log.Info(ctx, "session revoked", "user_id", userID, "family_id", familyID, "reason", reason)
	return nil
}

// RevokeAll signs the user out everywhere and reports how many sessions
// were still active.
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	var ended int64
	err := r.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		ended, err = r.endAllForUser(ctx, tx, userID, reason, r.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	r.log.Info(ctx, "all sessions revoked", "user_id", userID, "sessions", ended, "reason", reason)
	return ended, nil
}

func (r *SessionRegistry) owned(ctx context.Context, db dbx.DBTX, userID, familyID string) (*models.Session, error) {
	s, err := r.repos.Sessions(db).Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.UserID != userID {
		return nil, common.ErrorNotFound
	}
	// The tip's expiry bounds the family; once it passes no token can be
	// used, whether or not the sweep has ended the row yet.
	s.IsActive = s.IsActive && s.ExpiresAt.After(r.clock.Now())
	return s, nil
}

func (r *SessionRegistry) open(ctx context.Context, tx dbx.DBTX, s *models.Session) error {
	if err := r.repos.Sessions(tx).Create(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRegistry) touch(ctx context.Context, tx dbx.DBTX, familyID string, at, expiresAt time.Time) error {
	if err := r.repos.Sessions(tx).Touch(ctx, familyID, at, expiresAt); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *SessionRegistry) endFamily(ctx context.Context, tx dbx.DBTX, familyID, reason string, at time.Time) error {
	if _, err := r.repos.RefreshTokens(tx).RevokeFamily(ctx, familyID, reason, at); err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	if err := r.repos.Sessions(tx).Deactivate(ctx, familyID, reason, at); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (r *SessionRegistry) endAllForUser(ctx context.Context, tx dbx.DBTX, userID, reason string, at time.Time) (int64, error) {
	if _, err := r.repos.RefreshTokens(tx).RevokeAllForUser(ctx, userID, reason, at); err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	n, err := r.repos.Sessions(tx).DeactivateAllForUser(ctx, userID, reason, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return n, nil
}
