package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// RefreshRequest carries the presented refresh token. ExpectedUserID, when
// set, must match the token's owner.
type RefreshRequest struct {
	RefreshToken   string
	ExpectedUserID string
}

// Rotator exchanges refresh tokens and detects reuse.
//
// The presented row is locked for the whole transaction, so of two
// concurrent exchanges of the same token exactly one rotates and the other
// sees a used token and burns the family.
type Rotator struct {
	runner   dbx.TxRunner
	repos    repomanager.RepositoryManager
	issuer   *TokenIssuer
	sessions *SessionRegistry
	clock    timex.Clock
	log      logging.Logger
}

func NewRotator(runner dbx.TxRunner, repos repomanager.RepositoryManager, issuer *TokenIssuer,
	sessions *SessionRegistry, clock timex.Clock, log logging.Logger) *Rotator {
	return &Rotator{
		runner:   runner,
		repos:    repos,
		issuer:   issuer,
		sessions: sessions,
		clock:    clock,
		log:      log.With("module", "rotator"),
	}
}

// outcome of the rotation transaction when it commits without a new pair.
type rotationVerdict int

const (
	verdictRotated rotationVerdict = iota
	verdictTheft
	verdictUserInactive
)

// Refresh validates the presented token and returns a new pair. Rejections
// are common.ErrInvalidToken, common.ErrTokenExpired, common.ErrTokenRevoked
// and common.ErrTheftDetected. The theft and inactive-user revocations are
// committed before the error is returned.
func (r *Rotator) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	if req.RefreshToken == "" {
		return nil, common.ErrInvalidToken
	}
	hash := r.issuer.hashToken(req.RefreshToken)

	var (
		pair    *TokenPair
		verdict rotationVerdict
		current *models.RefreshToken
	)
	err := r.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := r.repos.RefreshTokens(tx)

		var err error
		current, err = tokens.FindByHashForUpdate(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("find refresh token: %w", err)
		}
		if req.ExpectedUserID != "" && req.ExpectedUserID != current.UserID {
			return common.ErrInvalidToken
		}

		now := r.clock.Now()
		switch {
		case current.IsExpired(now):
			return common.ErrTokenExpired
		case current.IsRevoked:
			return common.ErrTokenRevoked
		case current.IsUsed:
			verdict = verdictTheft
			return r.sessions.endFamily(ctx, tx, current.FamilyID, common.ReasonTokenReuse, now)
		}

		session, err := r.repos.Sessions(tx).Get(ctx, current.FamilyID)
		switch {
		case err == nil && session.UserID != current.UserID:
			return common.ErrInvalidToken
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return fmt.Errorf("load session: %w", err)
		}

		user, err := r.repos.Users(tx).GetByID(ctx, current.UserID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil || !user.IsActive {
			verdict = verdictUserInactive
			return r.sessions.endFamily(ctx, tx, current.FamilyID, common.ReasonUserInactive, now)
		}

		if err := tokens.MarkUsed(ctx, current.ID, now); err != nil {
			return fmt.Errorf("mark used: %w", err)
		}

		parentID := current.ID
		pair, err = r.issuer.IssuePair(ctx, tx, IssueRequest{
			User:     user,
			FamilyID: current.FamilyID,
			ParentID: &parentID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	switch verdict {
	case verdictTheft:
		r.log.Warn(ctx, "refresh token reuse detected, family revoked",
			"event", "refresh_reuse_detected", "family_id", current.FamilyID, "user_id", current.UserID)
		return nil, common.ErrTheftDetected
	case verdictUserInactive:
		r.log.Warn(ctx, "refresh for inactive user, family revoked",
			"event", "refresh_user_inactive", "family_id", current.FamilyID, "user_id", current.UserID)
		return nil, common.ErrTokenRevoked
	}

	r.log.Debug(ctx, "refresh token rotated", "family_id", pair.FamilyID, "user_id", current.UserID)
	return pair, nil
}
