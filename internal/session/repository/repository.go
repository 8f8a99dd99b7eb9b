package repository

import (
	"context"
	"time"

	"trading-bot-dashboard/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Lookups return nil, nil for absent rows;
// a non-nil error always means the store itself failed.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// FindActiveByHash returns the session with tokenHash if it is unexpired at now
	// and its user is active.
	FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error)
	// DeleteByHash removes every row with tokenHash and returns how many were removed.
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)
	// DeleteByID removes exactly the row with id.
	DeleteByID(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	// Rotate deletes the active row with oldHash and inserts next in one atomic step.
	// It returns nil, nil when no active row with oldHash existed (already rotated,
	// revoked, expired, or user inactive); next is not inserted in that case.
	// The stored successor keeps the old row's CreatedAt and has LastSeenAt = now.
	Rotate(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
