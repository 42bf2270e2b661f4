// Package models defines server-side data models persisted in the database.
package models

import "time"

// Roles known to the service. Role values are opaque to the token core.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record the token core authenticates against.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
}
