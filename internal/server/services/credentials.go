package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/auth"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
)

// CredentialVerifier checks email/password pairs. Unknown email, wrong
// password and inactive account all return common.ErrInvalidCredentials after
// one bcrypt comparison each.
type CredentialVerifier struct {
	runner dbx.TxRunner
	repos  repomanager.RepositoryManager
	hasher *auth.PasswordHasher
}

func NewCredentialVerifier(runner dbx.TxRunner, repos repomanager.RepositoryManager, hasher *auth.PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{runner: runner, repos: repos, hasher: hasher}
}

// Verify returns the active user matching email and password.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.repos.Users(v.runner.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			v.hasher.CompareDummy(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	matched := v.hasher.Compare(user.PasswordHash, password)
	if !matched || !user.IsActive {
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}
