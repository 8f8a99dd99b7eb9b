package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	auditdomain "trading-bot-dashboard/backend/internal/audit/domain"
	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/ratelimit"
	"trading-bot-dashboard/backend/internal/security"
	sessiondomain "trading-bot-dashboard/backend/internal/session/domain"
	"trading-bot-dashboard/backend/internal/telemetry"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
)

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Profile          userdomain.Profile
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u *userdomain.User) error
	SetStatus(ctx context.Context, id string, status userdomain.UserStatus) error
	CreatePasswordReset(ctx context.Context, r *userdomain.PasswordReset) error
	PasswordResetActive(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error)
}

// UserReader loads users by id, possibly from a cache that Invalidate clears.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Invalidate(id string)
}

// SessionStore is the session store needed by the auth service.
type SessionStore interface {
	Store(ctx context.Context, userID, rawRefreshToken string, origin sessiondomain.Origin) (*sessiondomain.Session, error)
	FindActive(ctx context.Context, rawRefreshToken string) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, rawRefreshToken string) error
	ListActiveForUser(ctx context.Context, userID, currentRawToken string) ([]sessiondomain.Meta, error)
	Get(ctx context.Context, sessionID string) (*sessiondomain.Session, error)
	Terminate(ctx context.Context, sessionID string) (bool, error)
	Rotate(ctx context.Context, oldRawToken, newRawToken, userID string, origin sessiondomain.Origin) (*sessiondomain.Session, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// AuditLogger records security events. Best-effort.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Deps are the collaborators of AuthService. Audit, Metrics and Notifier may be nil.
type Deps struct {
	Users    UserRepo
	Reader   UserReader
	Sessions SessionStore
	Hasher   *security.Hasher
	Tokens   *security.TokenProvider
	Gate     *ratelimit.Gate
	Audit    AuditLogger
	Metrics  *telemetry.AuthMetrics
	Notifier Notifier
	Log      zerolog.Logger
}

// Options tune AuthService behavior.
type Options struct {
	// RevokeAllOnReuse revokes every session of a user when a spent refresh token is presented.
	RevokeAllOnReuse bool
	// DBTimeout bounds each user repository call. Zero means 3s.
	DBTimeout time.Duration
	// ResetTokenTTL is the lifetime of a password reset token. Zero means 1h.
	ResetTokenTTL time.Duration
}

// AuthService implements login, logout, current-user lookup and refresh-token
// rotation, plus registration, password reset and session management.
type AuthService struct {
	users    UserRepo
	reader   UserReader
	sessions SessionStore
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	gate     *ratelimit.Gate
	audit    AuditLogger
	metrics  *telemetry.AuthMetrics
	notifier Notifier
	log      zerolog.Logger
	opts     Options
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps, opts Options) *AuthService {
	if opts.DBTimeout <= 0 {
		opts.DBTimeout = 3 * time.Second
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = LogNotifier{Log: d.Log}
	}
	return &AuthService{
		users:    d.Users,
		reader:   d.Reader,
		sessions: d.Sessions,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		gate:     d.Gate,
		audit:    d.Audit,
		metrics:  d.Metrics,
		notifier: notifier,
		log:      d.Log,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces the service's time source.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *AuthService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.DBTimeout)
}

func (s *AuthService) logger(ctx context.Context) *zerolog.Logger {
	l := logging.WithTrace(ctx, s.log)
	return &l
}

func (s *AuthService) record(ctx context.Context, userID, action, resource string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	var md string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			md = string(b)
		}
	}
	s.audit.LogEvent(ctx, userID, action, resource, md)
}

// checkRate consults the gate and converts a denial into a *RateLimitedError.
func (s *AuthService) checkRate(ctx context.Context, action ratelimit.Action, subject ratelimit.Subject) error {
	if s.gate == nil {
		return nil
	}
	v := s.gate.Check(ctx, action, subject)
	if v.Allowed {
		return nil
	}
	return &RateLimitedError{ResetAt: v.ResetAt}
}

// Login verifies email and password and opens a session. Unknown emails and wrong
// passwords both return ErrAuthenticationFailed after the same bcrypt work; an
// inactive account is reported only once the password matched.
func (s *AuthService) Login(ctx context.Context, email, password string, origin sessiondomain.Origin) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := s.checkRate(ctx, ratelimit.ActionLogin, ratelimit.Subject{
		ratelimit.DimensionIP:    origin.IPAddress,
		ratelimit.DimensionEmail: email,
	}); err != nil {
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeRateLimited)
		return nil, err
	}
	if email == "" || password == "" {
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeFailure)
		return nil, ErrAuthenticationFailed
	}

	lookupCtx, cancel := s.bounded(ctx)
	user, err := s.users.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("login: user lookup failed")
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	if user == nil {
		s.hasher.DummyVerify(ctx, []byte(password))
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeFailure)
		s.record(ctx, "", auditdomain.ActionLoginFailure, auditdomain.ResourceUser, nil)
		return nil, ErrAuthenticationFailed
	}
	if !s.hasher.Verify(ctx, []byte(password), user.PasswordHash) {
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeFailure)
		s.record(ctx, user.ID, auditdomain.ActionLoginFailure, auditdomain.ResourceUser, nil)
		return nil, ErrAuthenticationFailed
	}
	if !user.IsActive() {
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeInactive)
		s.record(ctx, user.ID, auditdomain.ActionLoginFailure, auditdomain.ResourceUser, map[string]string{"reason": "inactive"})
		return nil, ErrAccountInactive
	}

	res, sess, err := s.openSession(ctx, user, origin)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", user.ID).Msg("login: open session failed")
		s.metrics.LoginAttempt(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	s.metrics.LoginAttempt(ctx, telemetry.OutcomeSuccess)
	s.record(ctx, user.ID, auditdomain.ActionLoginSuccess, auditdomain.ResourceSession, map[string]string{"session_id": sess.ID})
	return res, nil
}

func (s *AuthService) issuePair(user *userdomain.User) (*AuthResult, error) {
	access, accessExp, err := s.tokens.IssueAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		Profile:          user.Profile(),
	}, nil
}

func (s *AuthService) openSession(ctx context.Context, user *userdomain.User, origin sessiondomain.Origin) (*AuthResult, *sessiondomain.Session, error) {
	res, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Store(ctx, user.ID, res.RefreshToken, origin)
	if err != nil {
		return nil, nil, err
	}
	return res, sess, nil
}

// Logout revokes the session bound to refreshToken. An empty, unknown or already
// revoked token is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		s.logger(ctx).Error().Err(err).Msg("logout: revoke failed")
		return ErrUnavailable
	}
	if claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh); err == nil {
		s.record(ctx, claims.Subject, auditdomain.ActionLogout, auditdomain.ResourceSession, nil)
	}
	return nil
}

// CurrentUser validates accessToken and returns the profile of its still-active
// user. It returns nil, nil when the token is invalid or expired, the account is
// no longer active, or the user lookup failed; the failure is only logged.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*userdomain.Profile, error) {
	claims, err := s.tokens.Verify(accessToken, security.TokenTypeAccess)
	if err != nil {
		return nil, nil
	}
	lookupCtx, cancel := s.bounded(ctx)
	defer cancel()
	user, err := s.reader.GetByID(lookupCtx, claims.Subject)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", claims.Subject).Msg("current user: lookup failed")
		return nil, nil
	}
	if !user.IsActive() {
		return nil, nil
	}
	p := user.Profile()
	return &p, nil
}

// Refresh rotates refreshToken: the presented token is consumed and a new
// access/refresh pair is returned. Presenting a token that was already rotated
// or revoked is treated as replay. Every failure returns ErrAuthenticationFailed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, origin sessiondomain.Origin) (*AuthResult, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		s.metrics.Refresh(ctx, telemetry.OutcomeFailure)
		return nil, ErrAuthenticationFailed
	}
	userID := claims.Subject

	sess, err := s.sessions.FindActive(ctx, refreshToken)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("refresh: session lookup failed")
		s.metrics.Refresh(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	if sess == nil || sess.UserID != userID {
		s.replayed(ctx, userID, "session not active")
		return nil, ErrAuthenticationFailed
	}

	lookupCtx, cancel := s.bounded(ctx)
	user, err := s.reader.GetByID(lookupCtx, userID)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("refresh: user lookup failed")
		s.metrics.Refresh(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	if !user.IsActive() {
		s.metrics.Refresh(ctx, telemetry.OutcomeInactive)
		return nil, ErrAuthenticationFailed
	}

	res, err := s.issuePair(user)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("refresh: issue tokens failed")
		s.metrics.Refresh(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	next, err := s.sessions.Rotate(ctx, refreshToken, res.RefreshToken, userID, origin)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("refresh: rotate failed")
		s.metrics.Refresh(ctx, telemetry.OutcomeError)
		return nil, ErrAuthenticationFailed
	}
	if next == nil {
		s.replayed(ctx, userID, "lost concurrent rotation")
		return nil, ErrAuthenticationFailed
	}
	s.metrics.Refresh(ctx, telemetry.OutcomeSuccess)
	return res, nil
}

// replayed handles a validly signed refresh token that has no active session.
func (s *AuthService) replayed(ctx context.Context, userID, reason string) {
	s.metrics.Refresh(ctx, telemetry.OutcomeReplay)
	s.logger(ctx).Warn().Str("user_id", userID).Str("reason", reason).
		Msg("refresh token reuse detected")
	meta := map[string]string{"reason": reason}
	if s.opts.RevokeAllOnReuse {
		n, err := s.sessions.RevokeAllForUser(ctx, userID)
		if err != nil {
			s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("refresh: revoke all after reuse failed")
		} else {
			meta["revoked"] = strconv.FormatInt(n, 10)
		}
	}
	s.record(ctx, userID, auditdomain.ActionRefreshReplay, auditdomain.ResourceSession, meta)
}
