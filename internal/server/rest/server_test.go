package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T, health HealthFunc) *testAPI {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.LoginFailureThreshold = 3

	store := memory.NewStore()
	svc, err := services.NewAuthService(store, store, cfg, timex.SystemClock{}, logging.Nop{})
	require.NoError(t, err)

	h := NewHTTPServer("127.0.0.1:0", logging.Nop{}, svc, health, []string{"https://app.example.com"})
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

func (a *testAPI) do(method, path, token string, body any) *http.Response {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) expectError(resp *http.Response, status int, code string) {
	a.t.Helper()
	require.Equal(a.t, status, resp.StatusCode)
	body := decodeBody[ErrorResponse](a.t, resp)
	assert.Equal(a.t, code, body.Code)
	assert.NotEmpty(a.t, body.Message)
}

func (a *testAPI) registerAndLogin(email string) TokenResponse {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/auth/v1/register", "", RegisterRequest{Email: email, Password: "correct horse"})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	resp = a.do(http.MethodPost, "/auth/v1/login", "", LoginRequest{Email: email, Password: "correct horse", DeviceLabel: "browser"})
	require.Equal(a.t, http.StatusOK, resp.StatusCode)
	return decodeBody[TokenResponse](a.t, resp)
}

func TestRegister(t *testing.T) {
	api := newTestAPI(t, nil)

	resp := api.do(http.MethodPost, "/auth/v1/register", "", RegisterRequest{Email: "Alice@Example.com", Password: "correct horse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[RegisterResponse](t, resp)
	assert.Equal(t, "alice@example.com", body.Email)
	assert.Equal(t, "user", body.Role)
	assert.NotEmpty(t, body.UserID)

	resp = api.do(http.MethodPost, "/auth/v1/register", "", RegisterRequest{Email: "alice@example.com", Password: "correct horse"})
	api.expectError(resp, http.StatusConflict, "already_exists")

	resp = api.do(http.MethodPost, "/auth/v1/register", "", RegisterRequest{Email: "nope", Password: "correct horse"})
	api.expectError(resp, http.StatusBadRequest, "validation")

	resp = api.do(http.MethodPost, "/auth/v1/register", "", RegisterRequest{Email: "bob@example.com", Password: "short"})
	api.expectError(resp, http.StatusBadRequest, "validation")
}

func TestInvalidPayload(t *testing.T) {
	api := newTestAPI(t, nil)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/auth/v1/login", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	api.expectError(resp, http.StatusBadRequest, "invalid_payload")
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	tokens := api.registerAndLogin("alice@example.com")
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.EqualValues(t, 900, tokens.ExpiresIn)
	assert.NotEmpty(t, tokens.SessionID)

	resp := api.do(http.MethodGet, "/auth/v1/verify", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	who := decodeBody[VerifyResponse](t, resp)
	assert.Equal(t, tokens.UserID, who.UserID)
	assert.Equal(t, tokens.SessionID, who.SessionID)

	resp = api.do(http.MethodPost, "/auth/v1/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodeBody[TokenResponse](t, resp)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, tokens.SessionID, rotated.SessionID)

	resp = api.do(http.MethodPost, "/auth/v1/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	api.expectError(resp, http.StatusUnauthorized, "theft_detected")

	resp = api.do(http.MethodPost, "/auth/v1/logout", rotated.AccessToken, LogoutRequest{Scope: "current_device"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = api.do(http.MethodPost, "/auth/v1/logout", rotated.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodGet, "/auth/v1/verify", rotated.AccessToken, nil)
	api.expectError(resp, http.StatusUnauthorized, "revoked")

	resp = api.do(http.MethodPost, "/auth/v1/logout", rotated.AccessToken, LogoutRequest{Scope: "galaxy"})
	api.expectError(resp, http.StatusBadRequest, "validation")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/auth/v1/verify"},
		{http.MethodGet, "/auth/v1/sessions"},
		{http.MethodDelete, "/auth/v1/sessions"},
		{http.MethodGet, "/auth/v1/sessions/abc"},
		{http.MethodDelete, "/auth/v1/sessions/abc"},
		{http.MethodPost, "/auth/v1/logout"},
	} {
		resp := api.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.method+" "+tc.path)
	}

	resp := api.do(http.MethodGet, "/auth/v1/verify", "garbage", nil)
	api.expectError(resp, http.StatusUnauthorized, "invalid_token")
}

func TestSessions(t *testing.T) {
	api := newTestAPI(t, nil)
	first := api.registerAndLogin("alice@example.com")

	resp := api.do(http.MethodPost, "/auth/v1/login", "", LoginRequest{Email: "alice@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeBody[TokenResponse](t, resp)

	resp = api.do(http.MethodGet, "/auth/v1/sessions", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[SessionListResponse](t, resp)
	require.Len(t, list.Sessions, 2)
	current := 0
	for _, s := range list.Sessions {
		if s.Current {
			current++
			assert.Equal(t, first.SessionID, s.FamilyID)
			assert.Equal(t, "browser", s.DeviceLabel)
			assert.Equal(t, "127.0.0.1", s.IPAddress)
		}
	}
	assert.Equal(t, 1, current)

	resp = api.do(http.MethodDelete, "/auth/v1/sessions/"+second.SessionID, first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodGet, "/auth/v1/sessions/"+second.SessionID, first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ended := decodeBody[SessionResponse](t, resp)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.EndReason)
	assert.Equal(t, "user_revoked", *ended.EndReason)

	other := api.registerAndLogin("bob@example.com")
	resp = api.do(http.MethodDelete, "/auth/v1/sessions/"+first.SessionID, other.AccessToken, nil)
	api.expectError(resp, http.StatusNotFound, "not_found")

	resp = api.do(http.MethodDelete, "/auth/v1/sessions", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeBody[RevokeAllResponse](t, resp)
	assert.EqualValues(t, 1, all.SessionsRevoked)

	resp = api.do(http.MethodPost, "/auth/v1/refresh", "", RefreshRequest{RefreshToken: first.RefreshToken})
	api.expectError(resp, http.StatusUnauthorized, "revoked")
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, nil)
	api.registerAndLogin("alice@example.com")

	for i := 0; i < 3; i++ {
		resp := api.do(http.MethodPost, "/auth/v1/login", "", LoginRequest{Email: "alice@example.com", Password: "wrong password"})
		api.expectError(resp, http.StatusUnauthorized, "invalid_credentials")
	}

	resp := api.do(http.MethodPost, "/auth/v1/login", "", LoginRequest{Email: "alice@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "900", resp.Header.Get("Retry-After"))
	api.expectError(resp, http.StatusTooManyRequests, "rate_limited")
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, func(context.Context) error { return nil })
	resp := api.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", decodeBody[StatusResponse](t, resp).Status)

	down := newTestAPI(t, func(context.Context) error { return errors.New("connection refused") })
	resp = down.do(http.MethodGet, "/health", "", nil)
	down.expectError(resp, http.StatusServiceUnavailable, "internal")
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, nil)

	req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/auth/v1/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp2, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := NewHTTPServer("127.0.0.1:0", logging.Nop{}, nil, nil, []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
