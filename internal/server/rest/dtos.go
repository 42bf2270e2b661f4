package rest

import "time"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type LoginRequest struct {
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	DeviceLabel string `json:"device_label,omitempty" validate:"max=128"`
}

type RefreshRequest struct {
	RefreshToken   string `json:"refresh_token" validate:"required"`
	ExpectedUserID string `json:"expected_user_id,omitempty"`
}

type LogoutRequest struct {
	Scope string `json:"scope,omitempty" validate:"omitempty,oneof=current_device all_devices"`
}

type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"`
}

type VerifyResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	JTI       string    `json:"jti"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionResponse struct {
	FamilyID       string     `json:"family_id"`
	DeviceLabel    string     `json:"device_label"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsActive       bool       `json:"is_active"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      *string    `json:"end_reason,omitempty"`
	Current        bool       `json:"current"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type RevokeAllResponse struct {
	Status          string `json:"status"`
	SessionsRevoked int64  `json:"sessions_revoked"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
