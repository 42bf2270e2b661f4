package models

import "time"

// Session is the login context of one refresh-token family, shown to users
// as a device.
type Session struct {
	ID             string
	FamilyID       string
	UserID         string
	DeviceLabel    string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	IsActive       bool
	EndedAt        *time.Time
	EndReason      *string
}
