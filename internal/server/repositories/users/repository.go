// Package users declares the user store the token service authenticates
// against and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/permitauth/internal/server/models"
)

type Repository interface {
	// Create inserts user. A duplicate email (case-insensitive) yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail matches case-insensitively; common.ErrorNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}
