package models

import "time"

// BlacklistEntry rejects an access token by jti until ExpiresAt.
type BlacklistEntry struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}
