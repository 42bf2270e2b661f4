// Package services contains the token service business logic: credential
// verification, login rate limiting, token issuance and rotation with reuse
// detection, the session registry, the access-token blacklist and the
// housekeeping sweep. AuthService composes them into the operations the
// transports expose.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/auth"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// LogoutScope selects what a logout revokes besides the access token.
type LogoutScope string

const (
	ScopeCurrentDevice LogoutScope = "current_device"
	ScopeAllDevices    LogoutScope = "all_devices"
)

// ParseLogoutScope maps the wire value; empty means current device.
func ParseLogoutScope(s string) (LogoutScope, error) {
	switch LogoutScope(s) {
	case "", ScopeCurrentDevice:
		return ScopeCurrentDevice, nil
	case ScopeAllDevices:
		return ScopeAllDevices, nil
	default:
		return "", fmt.Errorf("%w: unknown logout scope %q", common.ErrorValidation, s)
	}
}

// RegisterRequest creates a user. Role defaults to models.RoleUser.
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// LoginRequest is one login call with client metadata.
type LoginRequest struct {
	Email    string
	Password string
	Device   DeviceInfo
}

// LoginResult is a successful login.
type LoginResult struct {
	Tokens *TokenPair
	User   *models.User
}

// AuthService is the facade used by the gRPC and HTTP transports and by the
// operator CLI.
type AuthService struct {
	runner      dbx.TxRunner
	repos       repomanager.RepositoryManager
	clock       timex.Clock
	log         logging.Logger
	validate    *validator.Validate
	hasher      *auth.PasswordHasher
	codec       *auth.TokenCodec
	verifier    *CredentialVerifier
	limiter     *RateLimiter
	issuer      *TokenIssuer
	rotator     *Rotator
	sessions    *SessionRegistry
	revocations *RevocationStore
}

// NewAuthService wires every component from cfg.
func NewAuthService(runner dbx.TxRunner, repos repomanager.RepositoryManager, cfg *config.Config,
	clock timex.Clock, log logging.Logger) (*AuthService, error) {
	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	codec := auth.NewTokenCodec([]byte(cfg.SecretKey), cfg.TokenIssuer, cfg.AccessTokenValidityDuration, clock)

	sessions := NewSessionRegistry(runner, repos, clock, log)
	revocations := NewRevocationStore(runner, repos, clock)
	issuer := NewTokenIssuer(repos, codec, sessions, revocations, clock, []byte(cfg.TokenHashKey), cfg.RefreshTokenValidityDuration)

	return &AuthService{
		runner:      runner,
		repos:       repos,
		clock:       clock,
		log:         log.With("module", "auth"),
		validate:    validator.New(),
		hasher:      hasher,
		codec:       codec,
		verifier:    NewCredentialVerifier(runner, repos, hasher),
		limiter:     NewRateLimiter(runner, repos, clock, cfg.LoginFailureThreshold, cfg.LoginFailureWindow),
		issuer:      issuer,
		rotator:     NewRotator(runner, repos, issuer, sessions, clock, log),
		sessions:    sessions,
		revocations: revocations,
	}, nil
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active, unverified user.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := NormalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if err := s.validate.Var(role, "oneof=user admin"); err != nil {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	created, err := s.repos.Users(s.runner.Conn()).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Login rate-limits, verifies credentials and opens a new session.
// Every call leaves exactly one login attempt row.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := NormalizeEmail(req.Email)

	if err := s.limiter.Check(ctx, email); err != nil {
		s.recordAttempt(ctx, email, req.Device.IPAddress, err)
		var rl *common.RateLimitError
		if errors.As(err, &rl) {
			s.log.Warn(ctx, "login rate limited", "event", "login_rate_limited", "ip", req.Device.IPAddress)
		}
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, email, req.Password)
	if err != nil {
		s.recordAttempt(ctx, email, req.Device.IPAddress, err)
		return nil, err
	}

	if err := s.limiter.Record(ctx, email, req.Device.IPAddress, nil); err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		pair, err = s.issuer.IssuePair(ctx, tx, IssueRequest{
			User:     user,
			FamilyID: uuid.NewString(),
			Device:   req.Device,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "login succeeded", "user_id", user.ID, "family_id", pair.FamilyID)
	return &LoginResult{Tokens: pair, User: user}, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, email, ip string, outcome error) {
	if err := s.limiter.Record(ctx, email, ip, outcome); err != nil {
		s.log.Error(ctx, "failed to record login attempt", "err", err)
	}
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	return s.rotator.Refresh(ctx, req)
}

// Verify checks an access token including the blacklist.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	return s.issuer.VerifyAccessToken(ctx, accessToken)
}

// Logout blacklists the presented access token and revokes the current
// family or every family of the user. The token may already be expired or
// blacklisted; logging out twice succeeds.
func (s *AuthService) Logout(ctx context.Context, accessToken string, scope LogoutScope) error {
	claims, err := s.codec.ParseIgnoringExpiry(accessToken)
	if err != nil {
		return err
	}
	userID := claims.UserID()

	err = s.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.clock.Now()
		if exp := claims.ExpiresAtTime(); exp.After(now) {
			if err := s.revocations.blacklist(ctx, tx, claims.ID, userID, exp, common.ReasonLogout); err != nil {
				return err
			}
		}

		switch scope {
		case ScopeAllDevices:
			_, err := s.sessions.endAllForUser(ctx, tx, userID, common.ReasonLogout, now)
			return err
		default:
			if claims.SessionID == "" {
				return nil
			}
			if _, err := s.sessions.owned(ctx, tx, userID, claims.SessionID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return nil
				}
				return err
			}
			return s.sessions.endFamily(ctx, tx, claims.SessionID, common.ReasonLogout, now)
		}
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "logout", "user_id", userID, "scope", string(scope))
	return nil
}

// ListSessions returns the user's active sessions.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.List(ctx, userID)
}

// GetSession returns one of the user's sessions.
func (s *AuthService) GetSession(ctx context.Context, userID, familyID string) (*models.Session, error) {
	return s.sessions.Get(ctx, userID, familyID)
}

// RevokeSession signs out one of the user's devices.
func (s *AuthService) RevokeSession(ctx context.Context, userID, familyID string) error {
	return s.sessions.Revoke(ctx, userID, familyID, common.ReasonUserRevoked)
}

// RevokeAllSessions signs the user out everywhere.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID, common.ReasonUserRevoked)
}

// AdminRevokeSession ends a session on an operator's behalf.
func (s *AuthService) AdminRevokeSession(ctx context.Context, userID, familyID string) error {
	return s.sessions.Revoke(ctx, userID, familyID, common.ReasonAdminRevoked)
}

// AdminRevokeAll ends every session of a user on an operator's behalf.
func (s *AuthService) AdminRevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID, common.ReasonAdminRevoked)
}

// DeactivateUser marks the user inactive and ends all their sessions. Access
// tokens already issued stay valid until they expire; refresh is refused.
func (s *AuthService) DeactivateUser(ctx context.Context, userID string) (int64, error) {
	var ended int64
	err := s.runner.RunInTx(ctx, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).SetActive(ctx, userID, false); err != nil {
			return err
		}
		var err error
		ended, err = s.sessions.endAllForUser(ctx, tx, userID, common.ReasonUserInactive, s.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "user deactivated", "user_id", userID, "sessions", ended)
	return ended, nil
}

// AdminBlacklist rejects a leaked access token before it expires. The entry
// outlives any token the codec could have signed for that jti.
func (s *AuthService) AdminBlacklist(ctx context.Context, userID, jti string) error {
	if strings.TrimSpace(jti) == "" {
		return fmt.Errorf("%w: jti is required", common.ErrorValidation)
	}
	expiresAt := s.clock.Now().Add(s.codec.TTL())
	if err := s.revocations.Blacklist(ctx, jti, userID, expiresAt, common.ReasonAdminRevoked); err != nil {
		return err
	}
	s.log.Warn(ctx, "access token blacklisted", "user_id", userID, "jti", jti)
	return nil
}

// FindUserByEmail is used by the operator CLI to resolve an address.
func (s *AuthService) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repos.Users(s.runner.Conn()).GetByEmail(ctx, NormalizeEmail(email))
}
