// Package users declares the store contract for identity records and its
// PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository defines the user operations the services rely on.
// Lookups return common.ErrorNotFound when no row matches; a uniqueness
// violation on Create wraps common.ErrAlreadyExists.
type Repository interface {
	// Create inserts user and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// UpdatePassword and UpdatePasswordByEmail overwrite the hash and report
	// whether a row matched.
	UpdatePassword(ctx context.Context, userID, passwordHash string) (bool, error)
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) (bool, error)

	// UpdateFaceEmbedding replaces the enrolled embedding.
	UpdateFaceEmbedding(ctx context.Context, userID string, embedding []float32) (bool, error)

	// UpdateLastLogin stamps a successful authentication.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// VerifyEmail sets email_verified and is_verified. Repeating it is a no-op.
	VerifyEmail(ctx context.Context, email string) (bool, error)
}
