package repository

import (
	"context"
	"sync"
	"time"

	"trading-bot-dashboard/backend/internal/user/domain"
)

// MemoryRepository is an in-process user store for development runs without
// Postgres and for tests. Returned users are copies.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]domain.User
	resets map[string]domain.PasswordReset
}

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]domain.User),
		resets: make(map[string]domain.PasswordReset),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ID == u.ID || existing.Email == u.Email || existing.Username == u.Username {
			return ErrConflict
		}
	}
	r.byID[u.ID] = *u
	return nil
}

func (r *MemoryRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Status = status
		u.UpdatedAt = time.Now().UTC()
		r.byID[id] = u
	}
	return nil
}

func (r *MemoryRepository) CreatePasswordReset(ctx context.Context, pr *domain.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, existing := range r.resets {
		if existing.UserID == pr.UserID {
			delete(r.resets, h)
		}
	}
	r.resets[pr.TokenHash] = *pr
	return nil
}

func (r *MemoryRepository) PasswordResetActive(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.resets[tokenHash]
	return ok && now.Before(pr.ExpiresAt), nil
}

func (r *MemoryRepository) ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.resets[tokenHash]
	if !ok || !now.Before(pr.ExpiresAt) {
		return "", nil
	}
	delete(r.resets, tokenHash)
	u, ok := r.byID[pr.UserID]
	if !ok || !u.IsActive() {
		return "", nil
	}
	u.PasswordHash = newPasswordHash
	u.UpdatedAt = now
	r.byID[u.ID] = u
	return u.ID, nil
}

// IsActive reports whether id names an active user. It matches the signature
// the in-memory session store expects for its user-status check.
func (r *MemoryRepository) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	return ok && u.IsActive()
}
