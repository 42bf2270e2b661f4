package common

// AuthorizationHeaderName is the HTTP header and gRPC metadata key that
// carries the bearer access token.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the access token in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// Revocation reasons persisted with refresh tokens, sessions and blacklist entries.
const (
	ReasonLogout        = "logout"
	ReasonTokenReuse    = "token_reuse_detected"
	ReasonUserRevoked   = "user_revoked"
	ReasonUserInactive  = "user_inactive"
	ReasonAdminRevoked  = "admin_revoked"
	ReasonSessionExpiry = "expired"
)
