package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t       *testing.T
	cfg     *config.Config
	store   *memory.Store
	clock   *testClock
	logs    *bytes.Buffer
	svc     *AuthService
	janitor *Janitor
}

const testPassword = "correct horse battery"

func newHarness(t *testing.T) *harness {
	return newHarnessWithRepos(t, nil)
}

// newHarnessWithRepos lets a test wrap the memory store's repositories.
func newHarnessWithRepos(t *testing.T, wrap func(*memory.Store) repomanager.RepositoryManager) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.SecretKey = "test-access-secret"
	cfg.TokenHashKey = "test-refresh-pepper"

	store := memory.NewStore()
	var repos repomanager.RepositoryManager = store
	if wrap != nil {
		repos = wrap(store)
	}

	clock := newTestClock()
	var buf bytes.Buffer
	log, err := logging.New(logging.BackendSlog, "debug", &buf)
	require.NoError(t, err)

	svc, err := NewAuthService(store, repos, cfg, clock, log)
	require.NoError(t, err)

	return &harness{
		t:       t,
		cfg:     cfg,
		store:   store,
		clock:   clock,
		logs:    &buf,
		svc:     svc,
		janitor: NewJanitor(store, repos, clock, log, cfg.RefreshTokenValidityDuration, cfg.LoginAttemptRetention),
	}
}

func (h *harness) register(email string) *models.User {
	h.t.Helper()
	u, err := h.svc.Register(context.Background(), RegisterRequest{Email: email, Password: testPassword})
	require.NoError(h.t, err)
	return u
}

func (h *harness) login(email string) *LoginResult {
	h.t.Helper()
	res, err := h.svc.Login(context.Background(), LoginRequest{
		Email:    email,
		Password: testPassword,
		Device:   DeviceInfo{Label: "laptop", IPAddress: "10.0.0.1", UserAgent: "test"},
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) refresh(token string) (*TokenPair, error) {
	return h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: token})
}

// liveTips counts unused, unrevoked, unexpired tokens in a family.
func (h *harness) liveTips(familyID string) int {
	n := 0
	now := h.clock.Now()
	for _, tok := range h.store.FamilyTokens(familyID) {
		if tok.IsLive(now) {
			n++
		}
	}
	return n
}
