package services

import (
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// PublicUser is the only user shape that leaves the service layer. It never
// carries the password hash or the face embedding.
type PublicUser struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	FullName      *string     `json:"full_name"`
	Phone         *string     `json:"phone"`
	ProfileImage  *string     `json:"profile_image"`
	IsVerified    bool        `json:"is_verified"`
	EmailVerified bool        `json:"email_verified"`
	HasFace       bool        `json:"has_face"`
	CreatedAt     *string     `json:"created_at"`
	LastLogin     *string     `json:"last_login"`
	Token         string      `json:"token,omitempty"`
}

// SessionGrant describes a session opened by a successful authentication.
type SessionGrant struct {
	SessionToken string `json:"session_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at"`
}

// AuthResult is returned by every token-issuing flow.
type AuthResult struct {
	User    *PublicUser   `json:"user"`
	Token   string        `json:"token"`
	Session *SessionGrant `json:"session,omitempty"`
}

// toPublicUser strips secrets from user, renders timestamps as RFC 3339 UTC
// and, when includeToken is set, attaches a freshly issued token.
func (s *AuthService) toPublicUser(user *models.User, includeToken bool) (*PublicUser, error) {
	pub := &PublicUser{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Role:          user.Role,
		FullName:      user.FullName,
		Phone:         user.Phone,
		ProfileImage:  user.ProfileImage,
		IsVerified:    user.IsVerified,
		EmailVerified: user.EmailVerified,
		HasFace:       user.HasFace(),
		CreatedAt:     formatTime(user.CreatedAt),
	}
	if user.LastLogin != nil {
		pub.LastLogin = formatTime(*user.LastLogin)
	}
	if includeToken {
		token, err := s.codec.Issue(user)
		if err != nil {
			return nil, err
		}
		pub.Token = token
	}
	return pub, nil
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
