package service

import (
	"context"

	auditdomain "trading-bot-dashboard/backend/internal/audit/domain"
	sessiondomain "trading-bot-dashboard/backend/internal/session/domain"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
)

// Actor is the authenticated caller of a session-management operation.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == userdomain.RoleAdmin }

// ListSessions returns the caller's active sessions; currentRefresh marks the one in use.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentRefresh string) ([]sessiondomain.Meta, error) {
	list, err := s.sessions.ListActiveForUser(ctx, userID, currentRefresh)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("list sessions failed")
		return nil, ErrUnavailable
	}
	return list, nil
}

// ListUserSessions returns any user's active sessions. Admin only.
func (s *AuthService) ListUserSessions(ctx context.Context, actor Actor, userID string) ([]sessiondomain.Meta, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.ListSessions(ctx, userID, "")
}

// TerminateSession ends one session. Users may end their own sessions; admins any.
// A session that does not exist, or is not visible to the actor, is ErrSessionNotFound.
// Access tokens already issued for it stay valid until they expire.
func (s *AuthService) TerminateSession(ctx context.Context, actor Actor, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("session_id", sessionID).Msg("terminate: lookup failed")
		return ErrUnavailable
	}
	if sess == nil || (sess.UserID != actor.UserID && !actor.IsAdmin()) {
		return ErrSessionNotFound
	}
	ok, err := s.sessions.Terminate(ctx, sessionID)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("session_id", sessionID).Msg("terminate failed")
		return ErrUnavailable
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.record(ctx, sess.UserID, auditdomain.ActionSessionTerminated, auditdomain.ResourceSession, map[string]string{
		"session_id": sessionID,
		"by":         actor.UserID,
	})
	return nil
}

// LogoutEverywhere revokes every session of userID and returns how many ended.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("logout everywhere failed")
		return 0, ErrUnavailable
	}
	s.record(ctx, userID, auditdomain.ActionSessionsRevokedAll, auditdomain.ResourceSession, nil)
	return n, nil
}
