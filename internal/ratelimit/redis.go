package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis failures so callers can tell them from bad input.
var ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")

// checkLimitScript applies the fixed-window rules atomically. The key's TTL is
// the window, so Redis drops void windows by itself.
// Returns {allowed, count, pttl_ms}.
const checkLimitScript = `
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], '1', 'PX', ARGV[2])
  return {1, 1, window}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = window
end
local count = tonumber(current)
if count >= max then
  return {0, count, ttl}
end
count = redis.call('INCR', KEYS[1])
return {1, count, ttl}
`

var checkLimitLua = redis.NewScript(checkLimitScript)

// RedisLimiter is a Limiter whose counters live in Redis, shared by every
// instance that points at the same server and prefix.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a [RedisLimiter]. prefix namespaces the keys (e.g. "rl").
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{redis: client, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source used to turn the key TTL into ResetAt.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *RedisLimiter) key(identifier string) string {
	return l.prefix + ":" + identifier
}

// CheckLimit implements Limiter.
func (l *RedisLimiter) CheckLimit(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (Decision, error) {
	if err := validLimit(maxAttempts, window); err != nil {
		return Decision{}, err
	}
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	res, err := checkLimitLua.Run(ctx, l.redis, []string{l.key(identifier)}, maxAttempts, windowMs).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}
	allowed, count, ttl := res[0] == 1, int(res[1]), time.Duration(res[2])*time.Millisecond
	d := Decision{Allowed: allowed, ResetAt: l.now().Add(ttl)}
	if allowed {
		d.Remaining = maxAttempts - count
	}
	return d, nil
}

// Ping reports whether Redis is reachable; used at startup.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
