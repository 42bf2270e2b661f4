package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// RevocationStore is the access-token blacklist.
type RevocationStore struct {
	runner dbx.TxRunner
	repos  repomanager.RepositoryManager
	clock  timex.Clock
}

func NewRevocationStore(runner dbx.TxRunner, repos repomanager.RepositoryManager, clock timex.Clock) *RevocationStore {
	return &RevocationStore{runner: runner, repos: repos, clock: clock}
}

// Blacklist rejects jti until expiresAt. Repeated calls are no-ops.
func (s *RevocationStore) Blacklist(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	return s.blacklist(ctx, s.runner.Conn(), jti, userID, expiresAt, reason)
}

func (s *RevocationStore) blacklist(ctx context.Context, db dbx.DBTX, jti, userID string, expiresAt time.Time, reason string) error {
	_, err := s.repos.Blacklist(db).Add(ctx, &models.BlacklistEntry{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	return nil
}

// IsBlacklisted is the per-request lookup.
func (s *RevocationStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	found, err := s.repos.Blacklist(s.runner.Conn()).Exists(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return found, nil
}
