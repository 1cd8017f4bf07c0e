package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type sessionRow struct {
	models.Session
}

// SessionsRepository implements sessions.Repository.
type SessionsRepository struct {
	s *Store
}

func (r *SessionsRepository) Create(_ context.Context, sess *models.Session) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, row := range r.s.sessions {
		if row.SessionToken == sess.SessionToken {
			return "", fmt.Errorf("%w (user_sessions_session_token_key)", common.ErrAlreadyExists)
		}
		if sess.RefreshToken != nil && row.RefreshToken != nil && *row.RefreshToken == *sess.RefreshToken {
			return "", fmt.Errorf("%w (user_sessions_refresh_token_key)", common.ErrAlreadyExists)
		}
	}

	id, _ := r.s.next()
	row := &sessionRow{Session: copySession(sess)}
	row.ID = id
	row.IsActive = true
	row.CreatedAt = r.s.now()
	r.s.sessions[id] = row
	return id, nil
}

func (r *SessionsRepository) FindByToken(_ context.Context, sessionToken string, now time.Time) (*models.Session, error) {
	return r.findLive(now, func(row *sessionRow) bool { return row.SessionToken == sessionToken })
}

func (r *SessionsRepository) FindByRefreshToken(_ context.Context, refreshToken string, now time.Time) (*models.Session, error) {
	return r.findLive(now, func(row *sessionRow) bool {
		return row.RefreshToken != nil && *row.RefreshToken == refreshToken
	})
}

func (r *SessionsRepository) Deactivate(_ context.Context, sessionToken string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, row := range r.s.sessions {
		if row.SessionToken == sessionToken && row.IsActive {
			row.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (r *SessionsRepository) DeactivateAllForUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, row := range r.s.sessions {
		if row.UserID == userID && row.IsActive {
			row.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *SessionsRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, row := range r.s.sessions {
		if row.ExpiresAt.Before(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionsRepository) findLive(now time.Time, match func(*sessionRow) bool) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, row := range r.s.sessions {
		if match(row) && row.Live(now) {
			c := copySession(&row.Session)
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func copySession(s *models.Session) models.Session {
	c := *s
	c.RefreshToken = clone(s.RefreshToken)
	c.DeviceInfo = clone(s.DeviceInfo)
	c.IPAddress = clone(s.IPAddress)
	c.UserAgent = clone(s.UserAgent)
	return c
}
