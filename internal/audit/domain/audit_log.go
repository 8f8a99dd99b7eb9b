package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	UserID    string // empty when the actor is unknown (e.g. login failure for an unknown email)
	Action    string
	Resource  string
	IP        string
	Metadata  string // JSON object or empty
	CreatedAt time.Time
}

// Audit actions written by the auth subsystem.
const (
	ActionLoginSuccess       = "login_success"
	ActionLoginFailure       = "login_failure"
	ActionLogout             = "logout"
	ActionRefreshReplay      = "refresh_replay"
	ActionSessionTerminated  = "session_terminated"
	ActionSessionsRevokedAll = "sessions_revoked_all"
	ActionPasswordReset      = "password_reset"
	ActionRegistered         = "registered"
	ActionStatusChanged      = "status_changed"
)

// Audit resources.
const (
	ResourceSession = "session"
	ResourceUser    = "user"
)
