package models

import "time"

// RefreshToken is one link of a rotation chain. Only the keyed hash of the
// opaque token value is stored.
type RefreshToken struct {
	ID               string
	UserID           string
	TokenHash        string
	FamilyID         string
	ParentID         *string
	IsUsed           bool
	IsRevoked        bool
	RevocationReason *string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	UsedAt           *time.Time
	RevokedAt        *time.Time
}

// IsExpired reports whether the token is past its expiry at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsLive reports whether the token is the usable tip of its family at now.
func (t *RefreshToken) IsLive(now time.Time) bool {
	return !t.IsUsed && !t.IsRevoked && !t.IsExpired(now)
}
