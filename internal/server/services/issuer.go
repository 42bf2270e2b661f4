package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/auth"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	FamilyID         string
	JTI              string
}

// Identity is what a verified access token asserts.
type Identity struct {
	UserID    string
	Role      string
	JTI       string
	SessionID string
	ExpiresAt time.Time
}

// IssueRequest describes one issuance. A nil ParentID starts a new family
// and opens its session; otherwise the token extends the chain.
type IssueRequest struct {
	User     *models.User
	FamilyID string
	ParentID *string
	Device   DeviceInfo
}

// TokenIssuer mints access/refresh pairs and verifies access tokens.
type TokenIssuer struct {
	repos       repomanager.RepositoryManager
	codec       *auth.TokenCodec
	sessions    *SessionRegistry
	revocations *RevocationStore
	clock       timex.Clock
	hashKey     []byte
	refreshTTL  time.Duration
}

func NewTokenIssuer(repos repomanager.RepositoryManager, codec *auth.TokenCodec, sessions *SessionRegistry,
	revocations *RevocationStore, clock timex.Clock, hashKey []byte, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		repos:       repos,
		codec:       codec,
		sessions:    sessions,
		revocations: revocations,
		clock:       clock,
		hashKey:     hashKey,
		refreshTTL:  refreshTTL,
	}
}

// IssuePair stores a new refresh token and opens or touches the session
// inside tx, then signs the access token. The refresh plaintext exists only
// in the returned pair.
func (i *TokenIssuer) IssuePair(ctx context.Context, tx dbx.DBTX, req IssueRequest) (*TokenPair, error) {
	raw, err := common.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	now := i.clock.Now()
	rt := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    req.User.ID,
		TokenHash: i.hashToken(raw),
		FamilyID:  req.FamilyID,
		ParentID:  req.ParentID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.refreshTTL),
	}
	if err := i.repos.RefreshTokens(tx).Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if req.ParentID == nil {
		err = i.sessions.open(ctx, tx, &models.Session{
			ID:             uuid.NewString(),
			FamilyID:       req.FamilyID,
			UserID:         req.User.ID,
			DeviceLabel:    req.Device.Label,
			IPAddress:      req.Device.IPAddress,
			UserAgent:      req.Device.UserAgent,
			CreatedAt:      now,
			LastActivityAt: now,
			ExpiresAt:      rt.ExpiresAt,
			IsActive:       true,
		})
	} else {
		err = i.sessions.touch(ctx, tx, req.FamilyID, now, rt.ExpiresAt)
	}
	if err != nil {
		return nil, err
	}

	access, claims, err := i.codec.Issue(req.User.ID, req.User.Role, req.FamilyID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		ExpiresIn:        i.codec.TTL(),
		AccessExpiresAt:  claims.ExpiresAtTime(),
		RefreshExpiresAt: rt.ExpiresAt,
		FamilyID:         req.FamilyID,
		JTI:              claims.ID,
	}, nil
}

// VerifyAccessToken checks signature, expiry and the blacklist.
func (i *TokenIssuer) VerifyAccessToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := i.codec.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := i.revocations.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, common.ErrTokenRevoked
	}
	return identityFrom(claims), nil
}

func (i *TokenIssuer) hashToken(raw string) string {
	return common.HashToken(i.hashKey, raw)
}

func identityFrom(c *auth.Claims) *Identity {
	return &Identity{
		UserID:    c.UserID(),
		Role:      c.Role,
		JTI:       c.ID,
		SessionID: c.SessionID,
		ExpiresAt: c.ExpiresAtTime(),
	}
}
