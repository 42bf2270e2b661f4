package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newCodec(secret string) (*TokenCodec, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTokenCodec([]byte(secret), "permitauth", 15*time.Minute, clk), clk
}

func TestIssueAndParse_Success(t *testing.T) {
	t.Parallel()
	codec, _ := newCodec("super-secret")

	tok, issued, err := codec.Issue("user-123", "admin", "fam-1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)

	claims, err := codec.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "fam-1", claims.SessionID)
	assert.Equal(t, issued.ID, claims.ID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 15, 0, 0, time.UTC), claims.ExpiresAtTime())
}

func TestIssue_UniqueJTI(t *testing.T) {
	t.Parallel()
	codec, _ := newCodec("k")

	_, a, err := codec.Issue("u", "user", "")
	require.NoError(t, err)
	_, b, err := codec.Issue("u", "user", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()
	codec, clk := newCodec("secret")

	tok, _, err := codec.Issue("u1", "user", "")
	require.NoError(t, err)

	clk.now = clk.now.Add(16 * time.Minute)
	_, err = codec.Parse(tok)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()
	codec, _ := newCodec("right-secret")
	other, _ := newCodec("wrong-secret")

	tok, _, err := codec.Issue("u2", "user", "")
	require.NoError(t, err)

	_, err = other.Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_WrongIssuer(t *testing.T) {
	t.Parallel()
	codec, clk := newCodec("secret")
	foreign := NewTokenCodec([]byte("secret"), "someone-else", time.Minute, clk)

	tok, _, err := foreign.Issue("u", "user", "")
	require.NoError(t, err)

	_, err = codec.Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	codec, clk := newCodec("secret")

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ID:        "j",
		Issuer:    "permitauth",
		ExpiresAt: jwt.NewNumericDate(clk.now.Add(time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = codec.Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.Parse(none)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()
	codec, _ := newCodec("k")

	_, err := codec.Parse("not.a.jwt")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseIgnoringExpiry(t *testing.T) {
	t.Parallel()
	codec, clk := newCodec("secret")

	tok, issued, err := codec.Issue("u1", "user", "fam")
	require.NoError(t, err)
	clk.now = clk.now.Add(time.Hour)

	claims, err := codec.ParseIgnoringExpiry(tok)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, claims.ID)

	other, _ := newCodec("different")
	_, err = other.ParseIgnoringExpiry(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestSystemClockCodec(t *testing.T) {
	t.Parallel()
	codec := NewTokenCodec([]byte("k"), "permitauth", time.Minute, timex.SystemClock{})
	tok, _, err := codec.Issue("u", "user", "")
	require.NoError(t, err)
	_, err = codec.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, codec.TTL())
}
