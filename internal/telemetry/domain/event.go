package domain

import "time"

// Event is an auth lifecycle event mirrored to the telemetry pipeline (OTel logs).
// It never carries secrets or raw tokens.
type Event struct {
	Type      string
	UserID    string
	SessionID string
	IP        string
	Metadata  []byte // JSON
	CreatedAt time.Time
}
