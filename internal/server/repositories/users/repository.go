// Package users declares the server-side repository contract for account
// records.
package users

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Repository defines point operations on user rows.
type Repository interface {
	// Create inserts a new user and returns it with ID and CreatedAt filled in.
	// A duplicate username or email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user with the given email, or common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the user with the given id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
