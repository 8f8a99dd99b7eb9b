// Package ratelimit implements fixed-window attempt counters keyed by
// action:dimension:value, an in-process and a Redis-backed Limiter, and the
// Gate that applies the per-action policy table to every auth entry point.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidLimit is returned when maxAttempts < 1 or window <= 0.
var ErrInvalidLimit = errors.New("ratelimit: invalid limit")

// Decision is the outcome of one CheckLimit call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts attempts per identifier in fixed windows.
//
// An identifier with no live window starts one: count 1, resetAt = now+window,
// allowed. Within a window, a count already at maxAttempts is denied without
// changing the window; otherwise the count is incremented and allowed. A
// window whose resetAt is at or before now is void.
type Limiter interface {
	CheckLimit(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (Decision, error)
}

func validLimit(maxAttempts int, window time.Duration) error {
	if maxAttempts < 1 || window <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
