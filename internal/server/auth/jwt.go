// Package auth holds the access-token codec (JWT, HS256) and password
// hashing used by the token service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// Claims are the access-token claims: registered sub, jti, iat, exp, iss,
// plus the user's role and the session (refresh-token family) the token
// was minted for.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// TokenCodec mints and parses access tokens with a dedicated HMAC secret.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  timex.Clock
}

func NewTokenCodec(secret []byte, issuer string, ttl time.Duration, clock timex.Clock) *TokenCodec {
	return &TokenCodec{secret: secret, issuer: issuer, ttl: ttl, clock: clock}
}

// TTL is the access-token lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue signs a fresh access token for the user with a new random jti.
func (c *TokenCodec) Issue(userID, role, sessionID string) (string, *Claims, error) {
	now := c.clock.Now().Truncate(time.Second)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role:      role,
		SessionID: sessionID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims, nil
}

// Parse fully validates the token: signature, algorithm, issuer and expiry.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// yields common.ErrInvalidToken. The blacklist is not consulted here.
func (c *TokenCodec) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	claims, err := c.parse(parser, tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ParseIgnoringExpiry checks signature, algorithm and issuer but accepts
// expired tokens. Logout uses it: the token being revoked may already have
// lapsed.
func (c *TokenCodec) ParseIgnoringExpiry(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims, err := c.parse(parser, tokenString)
	if err != nil || claims.Issuer != c.issuer || claims.ExpiresAt == nil {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (c *TokenCodec) parse(parser *jwt.Parser, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
