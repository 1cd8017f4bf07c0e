package models

import "time"

// Session is a durable login record. It is live while IsActive is set and
// ExpiresAt is in the future; IsActive never goes back to true.
type Session struct {
	ID           string
	UserID       string
	SessionToken string
	RefreshToken *string
	DeviceInfo   *string
	IPAddress    *string
	UserAgent    *string
	ExpiresAt    time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// Live reports whether s is usable at now.
func (s *Session) Live(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// SessionOptions are the optional fields of a new session. A nil pointer
// means the column is stored as NULL.
type SessionOptions struct {
	RefreshToken *string
	DeviceInfo   *string
	IPAddress    *string
	UserAgent    *string
}
