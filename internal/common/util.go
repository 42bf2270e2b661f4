package common

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// RefreshTokenSize is the number of random bytes behind every refresh token (256 bits).
const RefreshTokenSize = 32

// NewOpaqueToken returns a URL-safe random token with RefreshTokenSize bytes of entropy.
func NewOpaqueToken() (string, error) {
	b := make([]byte, RefreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the lookup key persisted for an opaque token: HMAC-SHA256 of
// raw under the server-side key. The same key must be used for issue and lookup.
func HashToken(key []byte, raw string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// WipeByteArray overwrites b with zeros. Nil-safe.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
