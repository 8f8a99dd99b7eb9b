package domain

import "time"

// Session binds the hash of one refresh token to a user. Exactly one row exists
// per usable refresh token; a missing row means the token is spent or revoked.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string // SHA-256 hex of the raw refresh token; the raw token is never stored
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt *time.Time
	IPAddress  string
	UserAgent  string
}

// Active reports whether the session is unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Origin describes where a session was opened or last rotated from.
type Origin struct {
	IPAddress string
	UserAgent string
}

// Meta is the view of a session exposed to session-management screens.
// It never carries the token hash.
type Meta struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Current    bool       `json:"current"`
}

// Meta returns the metadata view of s.
func (s *Session) Meta() Meta {
	return Meta{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
		ExpiresAt:  s.ExpiresAt,
		IPAddress:  s.IPAddress,
		UserAgent:  s.UserAgent,
	}
}
