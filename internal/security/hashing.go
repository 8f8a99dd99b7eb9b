package security

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
//
// bcrypt is CPU bound; slots bounds how many hashes run at once so a burst of
// logins cannot starve every other request on the box.
type Hasher struct {
	Cost  int
	slots *semaphore.Weighted

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31) and at most
// concurrency simultaneous hash operations. Cost 12 is the default for
// interactive login; concurrency <= 0 means runtime.NumCPU().
func NewHasher(cost, concurrency int) *Hasher {
	if cost <= 0 {
		cost = 12
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Hasher{Cost: cost, slots: semaphore.NewWeighted(int64(concurrency))}
}

// Hash produces a bcrypt hash of password suitable for storage. It waits for a
// free hashing slot and returns ctx.Err() if the context ends first.
func (h *Hasher) Hash(ctx context.Context, password []byte) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored hash. The comparison is
// constant-time (bcrypt). A malformed hash, a mismatch, or a context that ends
// before a hashing slot frees up all yield false.
func (h *Hasher) Verify(ctx context.Context, password []byte, hash string) bool {
	if hash == "" {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(hash), password) == nil
}

// DummyVerify spends one bcrypt comparison at the configured cost and always
// returns false. Login calls it for unknown emails so that path takes as long
// as a wrong password.
func (h *Hasher) DummyVerify(ctx context.Context, password []byte) bool {
	h.dummyOnce.Do(func() {
		secret, err := NewOpaqueToken()
		if err != nil {
			return
		}
		b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
		if err == nil {
			h.dummy = string(b)
		}
	})
	_ = h.Verify(ctx, password, h.dummy)
	return false
}
