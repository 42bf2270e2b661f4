package grpc

import (
	"context"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

type fakeAuth struct {
	identity  *services.Identity
	verifyErr error

	user        *models.User
	login       *services.LoginResult
	pair        *services.TokenPair
	err         error
	lastRefresh services.RefreshRequest
	lastLogin   services.LoginRequest

	loggedOut   string
	logoutScope services.LogoutScope

	sessions []models.Session
	revoked  string
}

func (f *fakeAuth) Register(context.Context, services.RegisterRequest) (*models.User, error) {
	return f.user, f.err
}

func (f *fakeAuth) Login(_ context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	f.lastLogin = req
	return f.login, f.err
}

func (f *fakeAuth) Refresh(_ context.Context, req services.RefreshRequest) (*services.TokenPair, error) {
	f.lastRefresh = req
	return f.pair, f.err
}

func (f *fakeAuth) Verify(_ context.Context, token string) (*services.Identity, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.identity == nil || token != "good" {
		return nil, common.ErrInvalidToken
	}
	return f.identity, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string, scope services.LogoutScope) error {
	f.loggedOut = token
	f.logoutScope = scope
	return f.err
}

func (f *fakeAuth) ListSessions(context.Context, string) ([]models.Session, error) {
	return f.sessions, f.err
}

func (f *fakeAuth) RevokeSession(_ context.Context, _, familyID string) error {
	f.revoked = familyID
	return f.err
}

func (f *fakeAuth) RevokeAllSessions(context.Context, string) (int64, error) {
	return int64(len(f.sessions)), f.err
}
