package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role tags the identity scheme a principal authenticated with.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleTeacher Role = "Teacher"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	SubjectID   int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsAdmin reports whether the principal signed in through the admin scheme.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsTeacher reports whether the principal signed in through the teacher scheme.
func (p Principal) IsTeacher() bool {
	return p.Role == RoleTeacher
}

// Session is the server-side record backing a session cookie.
type Session struct {
	ID         string    `json:"id"`
	Principal  Principal `json:"principal"`
	Persistent bool      `json:"persistent"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionClaims is the signed payload of the session cookie.
type SessionClaims struct {
	SessionID  string `json:"sid"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Persistent bool   `json:"persistent,omitempty"`
	jwt.RegisteredClaims
}

// LoginRequest holds credentials for either login scheme.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Principal Principal `json:"principal"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"-"`
}
