package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often a started MemoryLimiter drops void windows.
const DefaultSweepInterval = time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a Limiter over a mutex-guarded map. Counters are per process;
// use RedisLimiter when several instances serve the same users.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time

	sweepInterval time.Duration
	lifeMu        sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewMemoryLimiter returns an empty limiter. The sweep does not run until Start.
func NewMemoryLimiter(sweepInterval time.Duration) *MemoryLimiter {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &MemoryLimiter{
		entries:       make(map[string]*window),
		now:           time.Now,
		sweepInterval: sweepInterval,
	}
}

// WithClock replaces the limiter's time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// CheckLimit implements Limiter. It never returns an error for a valid limit.
func (l *MemoryLimiter) CheckLimit(ctx context.Context, identifier string, maxAttempts int, win time.Duration) (Decision, error) {
	if err := validLimit(maxAttempts, win); err != nil {
		return Decision{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[identifier]
	if !ok || !e.resetAt.After(now) {
		e = &window{count: 1, resetAt: now.Add(win)}
		l.entries[identifier] = e
		return Decision{Allowed: true, Remaining: maxAttempts - 1, ResetAt: e.resetAt}, nil
	}
	if e.count >= maxAttempts {
		return Decision{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}
	e.count++
	return Decision{Allowed: true, Remaining: maxAttempts - e.count, ResetAt: e.resetAt}, nil
}

// Sweep deletes every void window and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, e := range l.entries {
		if !e.resetAt.After(now) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked identifiers, void windows included until swept.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start runs Sweep every sweep interval until ctx is done or Stop is called.
// Calling Start on a running limiter is a no-op.
func (l *MemoryLimiter) Start(ctx context.Context) {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}(l.done)
}

// Stop ends the sweep goroutine and waits for it to exit. Counters are kept.
func (l *MemoryLimiter) Stop() {
	l.lifeMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
