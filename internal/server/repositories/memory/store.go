// Package memory provides an in-process implementation of the users, otps
// and sessions repositories. It enforces the same uniqueness and visibility
// rules as the PostgreSQL schema and is used in tests and for local runs
// without a database.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the shared state behind the three repository views.
type Store struct {
	mu       sync.Mutex
	seq      int64
	now      func() time.Time
	users    map[string]*userRow
	otps     map[string]*otpRow
	sessions map[string]*sessionRow
}

// New returns an empty Store stamping rows with time.Now.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty Store stamping created_at with now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:      now,
		users:    make(map[string]*userRow),
		otps:     make(map[string]*otpRow),
		sessions: make(map[string]*sessionRow),
	}
}

// Users returns the users view.
func (s *Store) Users() *UsersRepository { return &UsersRepository{s: s} }

// Otps returns the otps view.
func (s *Store) Otps() *OtpsRepository { return &OtpsRepository{s: s} }

// Sessions returns the sessions view.
func (s *Store) Sessions() *SessionsRepository { return &SessionsRepository{s: s} }

// next must be called with mu held.
func (s *Store) next() (string, int64) {
	s.seq++
	return uuid.NewString(), s.seq
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
