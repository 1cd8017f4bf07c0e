package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type userRow struct {
	models.User
}

// UsersRepository implements users.Repository.
type UsersRepository struct {
	s *Store
}

func (r *UsersRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Username == user.Username {
			return nil, fmt.Errorf("%w (users_username_key)", common.ErrAlreadyExists)
		}
		if u.Email == user.Email {
			return nil, fmt.Errorf("%w (users_email_key)", common.ErrAlreadyExists)
		}
	}

	id, _ := r.s.next()
	now := r.s.now()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.DefaultRole
	}
	r.s.users[id] = &userRow{User: copyUser(user)}
	return user, nil
}

func (r *UsersRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *userRow) bool { return u.Email == email })
}

func (r *UsersRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u *userRow) bool { return u.Username == username })
}

func (r *UsersRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *userRow) bool { return u.ID == id })
}

func (r *UsersRepository) UpdatePassword(_ context.Context, userID, passwordHash string) (bool, error) {
	return r.update(func(u *userRow) bool { return u.ID == userID }, func(u *userRow) {
		u.PasswordHash = passwordHash
	}), nil
}

func (r *UsersRepository) UpdatePasswordByEmail(_ context.Context, email, passwordHash string) (bool, error) {
	return r.update(func(u *userRow) bool { return u.Email == email }, func(u *userRow) {
		u.PasswordHash = passwordHash
	}), nil
}

func (r *UsersRepository) UpdateFaceEmbedding(_ context.Context, userID string, embedding []float32) (bool, error) {
	return r.update(func(u *userRow) bool { return u.ID == userID }, func(u *userRow) {
		u.FaceEmbedding = slices.Clone(embedding)
	}), nil
}

func (r *UsersRepository) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	r.update(func(u *userRow) bool { return u.ID == userID }, func(u *userRow) {
		u.LastLogin = &at
	})
	return nil
}

func (r *UsersRepository) VerifyEmail(_ context.Context, email string) (bool, error) {
	return r.update(func(u *userRow) bool { return u.Email == email }, func(u *userRow) {
		u.EmailVerified = true
		u.IsVerified = true
	}), nil
}

func (r *UsersRepository) find(match func(*userRow) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if match(u) {
			c := copyUser(&u.User)
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *UsersRepository) update(match func(*userRow) bool, apply func(*userRow)) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	changed := false
	for _, u := range r.s.users {
		if match(u) {
			apply(u)
			u.UpdatedAt = r.s.now()
			changed = true
		}
	}
	return changed
}

func copyUser(u *models.User) models.User {
	c := *u
	c.FaceEmbedding = slices.Clone(u.FaceEmbedding)
	c.FullName = clone(u.FullName)
	c.Phone = clone(u.Phone)
	c.ProfileImage = clone(u.ProfileImage)
	c.LastLogin = clone(u.LastLogin)
	return c
}
