package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a dashboard operator account. Business entities reference it by ID;
// this module owns only the fields auth needs.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string // opaque; passed through to access tokens
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusPending  UserStatus = "pending"
	UserStatusRejected UserStatus = "rejected"
	UserStatusDisabled UserStatus = "disabled"
)

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = "viewer"

// RoleAdmin may terminate any user's sessions.
const RoleAdmin = "admin"

// IsActive reports whether the user may obtain new sessions.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// Profile is the public view of a user returned by login and current-user lookups.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role}
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Status == "" {
		u.Status = UserStatusPending
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so lookups and rate-limit keys agree.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}
