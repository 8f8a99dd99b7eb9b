package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trading-bot-dashboard/backend/internal/user/domain"
)

type countingRepo struct {
	calls int
	users map[string]*domain.User
	err   error
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.users[id], nil
}

func TestCachedReader_CachesHits(t *testing.T) {
	repo := &countingRepo{users: map[string]*domain.User{"u1": {ID: "u1", Status: domain.UserStatusActive}}}
	r := NewCachedReader(repo, time.Minute)
	r.Start()
	defer r.Stop()

	for i := 0; i < 3; i++ {
		u, err := r.GetByID(context.Background(), "u1")
		if err != nil || u == nil || u.ID != "u1" {
			t.Fatalf("GetByID = %v, %v", u, err)
		}
	}
	if repo.calls != 1 {
		t.Errorf("repo calls = %d, want 1", repo.calls)
	}

	r.Invalidate("u1")
	if _, err := r.GetByID(context.Background(), "u1"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("repo calls after Invalidate = %d, want 2", repo.calls)
	}
}

func TestCachedReader_ReturnsCopies(t *testing.T) {
	repo := &countingRepo{users: map[string]*domain.User{"u1": {ID: "u1", Role: "viewer"}}}
	r := NewCachedReader(repo, time.Minute)
	u, _ := r.GetByID(context.Background(), "u1")
	u.Role = "admin"
	again, _ := r.GetByID(context.Background(), "u1")
	if again.Role != "viewer" {
		t.Errorf("cached user mutated through returned pointer: role = %q", again.Role)
	}
}

func TestCachedReader_MissesAndErrorsNotCached(t *testing.T) {
	repo := &countingRepo{users: map[string]*domain.User{}}
	r := NewCachedReader(repo, time.Minute)
	for i := 0; i < 2; i++ {
		if u, err := r.GetByID(context.Background(), "nobody"); u != nil || err != nil {
			t.Fatalf("GetByID(nobody) = %v, %v", u, err)
		}
	}
	if repo.calls != 2 {
		t.Errorf("repo calls = %d, want 2", repo.calls)
	}

	repo.err = errors.New("db down")
	if _, err := r.GetByID(context.Background(), "nobody"); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestCachedReader_ZeroTTLPassesThrough(t *testing.T) {
	repo := &countingRepo{users: map[string]*domain.User{"u1": {ID: "u1"}}}
	r := NewCachedReader(repo, 0)
	r.Start()
	defer r.Stop()
	_, _ = r.GetByID(context.Background(), "u1")
	_, _ = r.GetByID(context.Background(), "u1")
	if repo.calls != 2 {
		t.Errorf("repo calls = %d, want 2", repo.calls)
	}
}

func TestCachedReader_StartStopConcurrent(t *testing.T) {
	r := NewCachedReader(&countingRepo{}, time.Minute)
	r.Stop() // never started: no-op

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Start()
		}()
		go func() {
			defer wg.Done()
			r.Stop()
		}()
	}
	wg.Wait()
	r.Stop()
}
