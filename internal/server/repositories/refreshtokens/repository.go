// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find looks up a refresh token by its opaque token string and returns its
	// metadata, or common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteByID removes a single refresh token row. Deleting a non-existent
	// row is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUser removes every refresh token owned by userID. This is the
	// single-session enforcement primitive: login and logout both call it.
	DeleteByUser(ctx context.Context, userID string) error
}
