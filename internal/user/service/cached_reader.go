// Package service holds user lookups shared by the auth flows.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"trading-bot-dashboard/backend/internal/user/domain"
)

// Reader loads a user by id; nil, nil means not found.
type Reader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// CachedReader keeps recently loaded users for a short TTL so per-request
// current-user checks do not hit the database every time. A TTL of zero
// disables caching. Status changes made elsewhere become visible within one TTL.
type CachedReader struct {
	repo  Reader
	ttl   time.Duration
	cache *ttlcache.Cache[string, domain.User]

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewCachedReader wraps repo with a ttl cache. Call Start to run expiry cleanup and Stop on shutdown.
func NewCachedReader(repo Reader, ttl time.Duration) *CachedReader {
	r := &CachedReader{repo: repo, ttl: ttl}
	if ttl > 0 {
		r.cache = ttlcache.New(
			ttlcache.WithTTL[string, domain.User](ttl),
			ttlcache.WithDisableTouchOnHit[string, domain.User](),
		)
	}
	return r
}

// GetByID returns the user for id from the cache or the underlying repository.
// Absent users are not cached.
func (r *CachedReader) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if r.cache != nil {
		if item := r.cache.Get(id); item != nil {
			u := item.Value()
			return &u, nil
		}
	}
	u, err := r.repo.GetByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	if r.cache != nil {
		r.cache.Set(id, *u, ttlcache.DefaultTTL)
	}
	return u, nil
}

// Invalidate drops id from the cache.
func (r *CachedReader) Invalidate(id string) {
	if r.cache != nil {
		r.cache.Delete(id)
	}
}

// Start launches the cache's expiry loop. Safe to call more than once.
func (r *CachedReader) Start() {
	if r.cache == nil {
		return
	}
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.cache.Start()
	})
}

// Stop ends the expiry loop started by Start.
func (r *CachedReader) Stop() {
	if r.cache == nil || !r.started.Load() {
		return
	}
	r.stopOnce.Do(r.cache.Stop)
}
