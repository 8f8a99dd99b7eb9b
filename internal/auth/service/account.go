package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	auditdomain "trading-bot-dashboard/backend/internal/audit/domain"
	"trading-bot-dashboard/backend/internal/ratelimit"
	"trading-bot-dashboard/backend/internal/security"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
	userrepo "trading-bot-dashboard/backend/internal/user/repository"
)

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Register creates a pending account; an admin must activate it before it can log in.
// A taken email or username returns ErrInvalidInput without saying which.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, ip string) (*userdomain.Profile, error) {
	email := userdomain.NormalizeEmail(in.Email)
	username := userdomain.NormalizeUsername(in.Username)
	if err := s.checkRate(ctx, ratelimit.ActionRegister, ratelimit.Subject{
		ratelimit.DimensionIP:    ip,
		ratelimit.DimensionEmail: email,
	}); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(ctx, []byte(in.Password))
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("register: hash failed")
		return nil, ErrUnavailable
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		Role:         userdomain.DefaultRole,
		Status:       userdomain.UserStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, invalidInput(err.Error())
	}
	createCtx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.users.Create(createCtx, user); err != nil {
		if errors.Is(err, userrepo.ErrConflict) {
			return nil, invalidInput("email or username unavailable")
		}
		s.logger(ctx).Error().Err(err).Msg("register: create user failed")
		return nil, ErrUnavailable
	}
	s.record(ctx, user.ID, auditdomain.ActionRegistered, auditdomain.ResourceUser, nil)
	p := user.Profile()
	return &p, nil
}

// CheckAvailability reports whether username is free to register.
func (s *AuthService) CheckAvailability(ctx context.Context, username, ip string) (bool, error) {
	if err := s.checkRate(ctx, ratelimit.ActionAvailability, ratelimit.Subject{ratelimit.DimensionIP: ip}); err != nil {
		return false, err
	}
	username = userdomain.NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return false, err
	}
	lookupCtx, cancel := s.bounded(ctx)
	defer cancel()
	taken, err := s.users.UsernameExists(lookupCtx, username)
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("availability: lookup failed")
		return false, ErrUnavailable
	}
	return !taken, nil
}

// RequestPasswordReset issues a single-use reset token for an active account and
// hands it to the Notifier. Unknown or inactive emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ip string) error {
	email = userdomain.NormalizeEmail(email)
	if err := s.checkRate(ctx, ratelimit.ActionPasswordReset, ratelimit.Subject{
		ratelimit.DimensionIP:    ip,
		ratelimit.DimensionEmail: email,
	}); err != nil {
		return err
	}
	if validateEmail(email) != nil {
		return nil
	}
	lookupCtx, cancel := s.bounded(ctx)
	user, err := s.users.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("password reset: user lookup failed")
		return nil
	}
	if !user.IsActive() {
		return nil
	}
	raw, err := security.NewOpaqueToken()
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("password reset: token generation failed")
		return nil
	}
	now := s.now().UTC()
	reset := &userdomain.PasswordReset{
		TokenHash: security.HashRefreshToken(raw),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.opts.ResetTokenTTL),
		CreatedAt: now,
	}
	storeCtx, cancel := s.bounded(ctx)
	err = s.users.CreatePasswordReset(storeCtx, reset)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", user.ID).Msg("password reset: store failed")
		return nil
	}
	if err := s.notifier.SendPasswordReset(ctx, user.Email, raw); err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", user.ID).Msg("password reset: notify failed")
	}
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes every
// session of the account. Attempts are rate limited per IP, and the token is
// checked before any bcrypt work is spent on the new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, ip string) error {
	if err := s.checkRate(ctx, ratelimit.ActionResetConfirm, ratelimit.Subject{
		ratelimit.DimensionIP: ip,
	}); err != nil {
		return err
	}
	if token == "" {
		return invalidInput("invalid or expired reset token")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	tokenHash := security.HashRefreshToken(token)
	checkCtx, cancel := s.bounded(ctx)
	active, err := s.users.PasswordResetActive(checkCtx, tokenHash, s.now().UTC())
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("reset password: token lookup failed")
		return ErrUnavailable
	}
	if !active {
		return invalidInput("invalid or expired reset token")
	}
	hashed, err := s.hasher.Hash(ctx, []byte(newPassword))
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("reset password: hash failed")
		return ErrUnavailable
	}
	consumeCtx, cancel := s.bounded(ctx)
	userID, err := s.users.ConsumePasswordReset(consumeCtx, tokenHash, hashed, s.now().UTC())
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("reset password: consume failed")
		return ErrUnavailable
	}
	if userID == "" {
		return invalidInput("invalid or expired reset token")
	}
	s.reader.Invalidate(userID)
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("reset password: revoke sessions failed")
	}
	s.record(ctx, userID, auditdomain.ActionPasswordReset, auditdomain.ResourceUser, map[string]string{
		"sessions_revoked": fmt.Sprint(n),
	})
	return nil
}

// SetUserStatus changes an account's status. Only admins may call it; leaving the
// active state revokes all of the account's sessions.
func (s *AuthService) SetUserStatus(ctx context.Context, actor Actor, userID string, status userdomain.UserStatus) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	switch status {
	case userdomain.UserStatusActive, userdomain.UserStatusPending, userdomain.UserStatusRejected, userdomain.UserStatusDisabled:
	default:
		return invalidInput("unknown status")
	}
	lookupCtx, cancel := s.bounded(ctx)
	user, err := s.reader.GetByID(lookupCtx, userID)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("set status: lookup failed")
		return ErrUnavailable
	}
	if user == nil {
		return ErrNotFound
	}
	updateCtx, cancel := s.bounded(ctx)
	err = s.users.SetStatus(updateCtx, userID, status)
	cancel()
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("set status: update failed")
		return ErrUnavailable
	}
	s.reader.Invalidate(userID)
	if status != userdomain.UserStatusActive {
		if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
			s.logger(ctx).Error().Err(err).Str("user_id", userID).Msg("set status: revoke sessions failed")
		}
	}
	s.record(ctx, userID, auditdomain.ActionStatusChanged, auditdomain.ResourceUser, map[string]string{
		"status": string(status),
		"by":     actor.UserID,
	})
	return nil
}
