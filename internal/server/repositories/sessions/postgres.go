package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db      dbx.DBTX
	timeout time.Duration
	logger  logging.Logger
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, opts ...dbx.Option) *PostgresRepository {
	o := dbx.NewOptions(opts...)
	return &PostgresRepository{db: db, timeout: o.Timeout, logger: o.Logger}
}

// Create inserts an active session.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (string, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO user_sessions (user_id, session_token, refresh_token, device_info, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.SessionToken, s.RefreshToken, s.DeviceInfo, s.IPAddress, s.UserAgent, s.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return "", dbx.Fail(ctx, r.logger, "sessions.Create", err)
	}
	return id, nil
}

// FindByToken returns the live session for sessionToken.
func (r *PostgresRepository) FindByToken(ctx context.Context, sessionToken string, now time.Time) (*models.Session, error) {
	query := `
		SELECT id, user_id, session_token, refresh_token, device_info, ip_address, user_agent, expires_at, is_active, created_at
		FROM user_sessions
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > $2
	`
	return r.findOne(ctx, "sessions.FindByToken", query, sessionToken, now)
}

// FindByRefreshToken returns the live session owning refreshToken.
func (r *PostgresRepository) FindByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*models.Session, error) {
	query := `
		SELECT id, user_id, session_token, refresh_token, device_info, ip_address, user_agent, expires_at, is_active, created_at
		FROM user_sessions
		WHERE refresh_token = $1 AND is_active = TRUE AND expires_at > $2
	`
	return r.findOne(ctx, "sessions.FindByRefreshToken", query, refreshToken, now)
}

// Deactivate revokes one session.
func (r *PostgresRepository) Deactivate(ctx context.Context, sessionToken string) (bool, error) {
	query := `
		UPDATE user_sessions SET is_active = FALSE
		WHERE session_token = $1 AND is_active = TRUE
	`
	n, err := r.exec(ctx, "sessions.Deactivate", query, sessionToken)
	return n > 0, err
}

// DeactivateAllForUser revokes every session of userID.
func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE user_sessions SET is_active = FALSE
		WHERE user_id = $1 AND is_active = TRUE
	`
	return r.exec(ctx, "sessions.DeactivateAllForUser", query, userID)
}

// DeleteExpired removes sessions past their expiry.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM user_sessions
		WHERE expires_at < $1
	`
	return r.exec(ctx, "sessions.DeleteExpired", query, now)
}

func (r *PostgresRepository) findOne(ctx context.Context, op, query string, args ...any) (*models.Session, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	s := &models.Session{}
	var refresh, device, ip, agent sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &refresh, &device, &ip, &agent,
		&s.ExpiresAt, &s.IsActive, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Fail(ctx, r.logger, op, err)
	}
	s.RefreshToken = optional(refresh)
	s.DeviceInfo = optional(device)
	s.IPAddress = optional(ip)
	s.UserAgent = optional(agent)
	return s, nil
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	ctx, cancel := dbx.Bound(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbx.Fail(ctx, r.logger, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.Fail(ctx, r.logger, op, err)
	}
	return n, nil
}

func optional(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
