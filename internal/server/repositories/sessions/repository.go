// Package sessions declares the server-side repository contract for durable
// login sessions and its PostgreSQL implementation.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository defines operations for creating, finding and revoking sessions.
type Repository interface {
	// Create stores s as active and returns its ID. A session or refresh
	// token collision wraps common.ErrAlreadyExists.
	Create(ctx context.Context, s *models.Session) (string, error)

	// FindByToken returns the session only if it is active and expires after
	// now; otherwise common.ErrorNotFound.
	FindByToken(ctx context.Context, sessionToken string, now time.Time) (*models.Session, error)

	// FindByRefreshToken is FindByToken keyed by the refresh token.
	FindByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*models.Session, error)

	// Deactivate clears is_active for exactly one session. Deactivating an
	// inactive or unknown session is not an error; the result reports
	// whether a row changed.
	Deactivate(ctx context.Context, sessionToken string) (bool, error)

	// DeactivateAllForUser clears is_active on every active session of userID.
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes rows with expires_at < now, active or not.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
