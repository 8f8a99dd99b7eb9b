package repository

import (
	"context"
	"errors"
	"time"

	"trading-bot-dashboard/backend/internal/user/domain"
)

// ErrConflict is returned by Create when the email or username is already taken.
var ErrConflict = errors.New("user already exists")

// Repository defines persistence for users and their password reset tokens.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
	CreatePasswordReset(ctx context.Context, r *domain.PasswordReset) error
	PasswordResetActive(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (userID string, err error)
}
