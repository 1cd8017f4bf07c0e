package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// sessionTokenBytes is the entropy of session and refresh tokens.
const sessionTokenBytes = 32

// SessionService manages durable login sessions.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	now         func() time.Time
	logger      logging.Logger
}

// NewSessionService constructs a SessionService using repositories and
// server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		ttl:         cfg.SessionTTL,
		now:         time.Now,
		logger:      logger.With("module", "session_service"),
	}
}

// TTL returns the configured session lifetime. Zero means sessions are off.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// NewSessionToken returns an opaque random token for a session or refresh
// token.
func (s *SessionService) NewSessionToken() (string, error) {
	return common.MakeRandURLToken(sessionTokenBytes)
}

// Create persists a new active session. A token collision is returned as
// common.ErrAlreadyExists, never overwritten.
func (s *SessionService) Create(ctx context.Context, userID, sessionToken string, expiresAt time.Time, opts models.SessionOptions) (string, error) {
	return s.create(ctx, s.db, userID, sessionToken, expiresAt, opts)
}

func (s *SessionService) create(ctx context.Context, db dbx.DBTX, userID, sessionToken string, expiresAt time.Time, opts models.SessionOptions) (string, error) {
	id, err := s.repomanager.Sessions(db).Create(ctx, &models.Session{
		UserID:       userID,
		SessionToken: sessionToken,
		RefreshToken: opts.RefreshToken,
		DeviceInfo:   opts.DeviceInfo,
		IPAddress:    opts.IPAddress,
		UserAgent:    opts.UserAgent,
		ExpiresAt:    expiresAt,
		IsActive:     true,
	})
	if err != nil {
		return "", fmt.Errorf("error creating session: %w", err)
	}
	return id, nil
}

// FindActive returns the session only while it is active and unexpired;
// otherwise common.ErrorNotFound.
func (s *SessionService) FindActive(ctx context.Context, sessionToken string) (*models.Session, error) {
	sess, err := s.repomanager.Sessions(s.db).FindByToken(ctx, sessionToken, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error searching session: %w", err)
	}
	return sess, nil
}

// Deactivate ends one session. Repeating it is a no-op.
func (s *SessionService) Deactivate(ctx context.Context, sessionToken string) error {
	if _, err := s.repomanager.Sessions(s.db).Deactivate(ctx, sessionToken); err != nil {
		return fmt.Errorf("error deactivating session: %w", err)
	}
	return nil
}

// DeactivateAllForUser ends every active session of userID.
func (s *SessionService) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.deactivateAllForUser(ctx, s.db, userID)
}

func (s *SessionService) deactivateAllForUser(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := s.repomanager.Sessions(db).DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error deactivating sessions: %w", err)
	}
	return n, nil
}

// SweepExpired deletes sessions past expires_at, active or not.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error sweeping sessions: %w", err)
	}
	return n, nil
}
