package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/telemetry"
)

// DefaultPurgeInterval is how often the Sweeper purges expired sessions.
const DefaultPurgeInterval = time.Hour

// Purger removes expired sessions. *Store implements it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired session rows. Expired rows are already
// invisible to lookups; the sweep only reclaims storage.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	metrics  *telemetry.AuthMetrics
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper returns a stopped Sweeper. metrics may be nil.
func NewSweeper(purger Purger, interval time.Duration, metrics *telemetry.AuthMetrics, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &Sweeper{purger: purger, interval: interval, metrics: metrics, log: log}
}

// Start launches the sweep loop. It runs until ctx is done or Stop is called.
// Calling Start on a running Sweeper is a no-op.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

// Stop ends the sweep loop and waits for an in-flight purge to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *Sweeper) sweepOnce(ctx context.Context) {
	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("session sweep failed")
		}
		return
	}
	w.metrics.SessionsPurged(ctx, n)
	if n > 0 {
		w.log.Debug().Int64("purged", n).Msg("expired sessions purged")
	}
}
