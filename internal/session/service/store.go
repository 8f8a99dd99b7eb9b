package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trading-bot-dashboard/backend/internal/security"
	"trading-bot-dashboard/backend/internal/session/domain"
	"trading-bot-dashboard/backend/internal/session/repository"
)

// DefaultTTL is the lifetime of a session row, matching the refresh token lifetime.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultTimeout bounds every datastore call made by the Store.
const DefaultTimeout = 3 * time.Second

// ErrEmptyToken is returned when a raw refresh token is required but empty.
var ErrEmptyToken = errors.New("empty refresh token")

// Store tracks refresh tokens server-side so they can be revoked. It only ever
// persists SHA-256 hashes of raw tokens.
type Store struct {
	repo    repository.Repository
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewStore returns a Store over repo. ttl and timeout fall back to DefaultTTL and
// DefaultTimeout when not positive.
func NewStore(repo repository.Repository, ttl, timeout time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{repo: repo, ttl: ttl, timeout: timeout, now: time.Now}
}

// WithClock replaces the Store's time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) newSession(userID, rawToken string, origin domain.Origin) *domain.Session {
	now := s.now().UTC()
	return &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: security.HashRefreshToken(rawToken),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
	}
}

// Store persists a session for rawRefreshToken owned by userID, expiring ttl from now.
func (s *Store) Store(ctx context.Context, userID, rawRefreshToken string, origin domain.Origin) (*domain.Session, error) {
	if rawRefreshToken == "" {
		return nil, ErrEmptyToken
	}
	if userID == "" {
		return nil, errors.New("store session: empty user id")
	}
	sess := s.newSession(userID, rawRefreshToken, origin)
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// FindActive returns the session for rawRefreshToken if it exists, is unexpired and
// belongs to an active user. It returns nil, nil otherwise; an error means the store failed.
func (s *Store) FindActive(ctx context.Context, rawRefreshToken string) (*domain.Session, error) {
	if rawRefreshToken == "" {
		return nil, nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	sess, err := s.repo.FindActiveByHash(ctx, security.HashRefreshToken(rawRefreshToken), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// Revoke deletes the session for rawRefreshToken. Revoking an unknown or already
// revoked token is not an error.
func (s *Store) Revoke(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if _, err := s.repo.DeleteByHash(ctx, security.HashRefreshToken(rawRefreshToken)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ListActiveForUser returns metadata for the user's unexpired sessions, newest first.
// The entry whose token matches currentRawToken is marked Current.
func (s *Store) ListActiveForUser(ctx context.Context, userID, currentRawToken string) ([]domain.Meta, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	list, err := s.repo.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.Meta, 0, len(list))
	for _, sess := range list {
		m := sess.Meta()
		if currentRawToken != "" {
			m.Current = security.RefreshTokenHashEqual(currentRawToken, sess.TokenHash)
		}
		out = append(out, m)
	}
	return out, nil
}

// Get returns the session with id, or nil, nil if it does not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Terminate deletes exactly the session with sessionID and reports whether it existed.
func (s *Store) Terminate(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ok, err := s.repo.DeleteByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}
	return ok, nil
}

// Rotate replaces the session for oldRawToken with one for newRawToken in a single
// atomic step. It returns nil, nil when the old session was not active, which is
// what the loser of two concurrent rotations sees.
func (s *Store) Rotate(ctx context.Context, oldRawToken, newRawToken, userID string, origin domain.Origin) (*domain.Session, error) {
	if oldRawToken == "" || newRawToken == "" {
		return nil, ErrEmptyToken
	}
	next := s.newSession(userID, newRawToken, origin)
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	sess, err := s.repo.Rotate(ctx, security.HashRefreshToken(oldRawToken), next, next.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	return sess, nil
}

// RevokeAllForUser deletes every session of userID and returns how many were removed.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	n, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return n, nil
}

// PurgeExpired physically removes sessions whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}
