package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"trading-bot-dashboard/backend/internal/session/domain"
)

var errDuplicateHash = errors.New("session token hash already exists")

// MemoryRepository is an in-process session store for development runs without
// Postgres and for tests. A single mutex makes Rotate atomic.
type MemoryRepository struct {
	mu         sync.Mutex
	byID       map[string]*domain.Session
	userActive func(userID string) bool
}

// NewMemoryRepository returns an empty store. userActive reports whether a user may
// hold sessions; nil treats every user as active.
func NewMemoryRepository(userActive func(userID string) bool) *MemoryRepository {
	if userActive == nil {
		userActive = func(string) bool { return true }
	}
	return &MemoryRepository{byID: make(map[string]*domain.Session), userActive: userActive}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(s)
}

func (r *MemoryRepository) insertLocked(s *domain.Session) error {
	for _, existing := range r.byID {
		if existing.TokenHash == s.TokenHash {
			return errDuplicateHash
		}
	}
	s2 := *s
	r.byID[s.ID] = &s2
	return nil
}

func (r *MemoryRepository) FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.findActiveLocked(tokenHash, now); s != nil {
		s2 := *s
		return &s2, nil
	}
	return nil, nil
}

func (r *MemoryRepository) findActiveLocked(tokenHash string, now time.Time) *domain.Session {
	for _, s := range r.byID {
		if s.TokenHash == tokenHash && s.Active(now) && r.userActive(s.UserID) {
			return s
		}
	}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		s2 := *s
		return &s2, nil
	}
	return nil, nil
}

func (r *MemoryRepository) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.TokenHash == tokenHash {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	delete(r.byID, id)
	return ok, nil
}

func (r *MemoryRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.Active(now) {
			s2 := *s
			out = append(out, &s2)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.UserID == userID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.findActiveLocked(oldHash, now)
	if old == nil {
		return nil, nil
	}
	if old.UserID != next.UserID {
		return nil, errors.New("rotate session: owner mismatch")
	}
	delete(r.byID, old.ID)
	succ := *next
	succ.CreatedAt = old.CreatedAt
	seen := now
	succ.LastSeenAt = &seen
	if err := r.insertLocked(&succ); err != nil {
		r.byID[old.ID] = old
		return nil, err
	}
	return &succ, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !s.Active(now) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
