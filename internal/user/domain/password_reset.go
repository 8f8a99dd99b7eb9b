package domain

import "time"

// PasswordReset is a pending single-use reset token. Only its SHA-256 hash is stored.
type PasswordReset struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
