// Package models holds the records exchanged between the store adapter and
// the services.
package models

import "time"

// Role is the coarse authorization level carried in tokens.
type Role string

const (
	RoleCandidate   Role = "candidate"
	RoleInterviewer Role = "interviewer"
	RoleAdmin       Role = "admin"
)

// DefaultRole is assigned at registration when none is requested.
const DefaultRole = RoleCandidate

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCandidate, RoleInterviewer, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record. PasswordHash and FaceEmbedding never leave
// the service layer.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	FaceEmbedding []float32
	Role          Role
	FullName      *string
	Phone         *string
	ProfileImage  *string
	IsVerified    bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLogin     *time.Time
}

// HasFace reports whether a face embedding is enrolled.
func (u *User) HasFace() bool {
	return len(u.FaceEmbedding) > 0
}
