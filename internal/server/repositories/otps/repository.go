// Package otps declares the store contract for one-time passcodes and its
// PostgreSQL implementation.
package otps

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository persists passcodes. Only the most recently created unused row
// for an (email, code, purpose) triple is ever returned by a lookup.
type Repository interface {
	// Create inserts otp and fills ID and CreatedAt.
	Create(ctx context.Context, otp *models.OtpCode) (*models.OtpCode, error)

	// FindValid returns the latest unused row for the triple if it has not
	// expired at now; otherwise common.ErrorNotFound.
	FindValid(ctx context.Context, email, code string, purpose models.OtpPurpose, now time.Time) (*models.OtpCode, error)

	// FindLatestUnused returns the latest unused row regardless of expiry.
	FindLatestUnused(ctx context.Context, email, code string, purpose models.OtpPurpose) (*models.OtpCode, error)

	// MarkUsed flips used to true if it was false and reports whether this
	// call made the change.
	MarkUsed(ctx context.Context, id string) (bool, error)

	// DeleteExpired removes rows with expires_at < now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
