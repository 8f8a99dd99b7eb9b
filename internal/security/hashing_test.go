package security

import (
	"context"
	"testing"
	"time"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4, 2)
	ctx := context.Background()
	hash, err := h.Hash(ctx, []byte("secret123"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(ctx, []byte("secret123"), hash) {
		t.Fatal("Verify rejected the right password")
	}
	if h.Verify(ctx, []byte("wrong"), hash) {
		t.Fatal("Verify accepted the wrong password")
	}
}

func TestHasher_MalformedHash(t *testing.T) {
	h := NewHasher(4, 1)
	for _, hash := range []string{"", "not-a-hash", "$2a$04$short"} {
		if h.Verify(context.Background(), []byte("x"), hash) {
			t.Errorf("Verify(%q) = true", hash)
		}
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(0, 0); h.Cost != 12 {
		t.Errorf("default cost = %d, want 12", h.Cost)
	}
	if h := NewHasher(2, 1); h.Cost != 4 {
		t.Errorf("cost below minimum = %d, want 4", h.Cost)
	}
	if h := NewHasher(99, 1); h.Cost != 31 {
		t.Errorf("cost above maximum = %d, want 31", h.Cost)
	}
}

func TestHasher_VerifyFailsClosedWhenSlotsExhausted(t *testing.T) {
	h := NewHasher(4, 1)
	hash, err := h.Hash(context.Background(), []byte("pw"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if h.Verify(ctx, []byte("pw"), hash) {
		t.Fatal("Verify returned true without a hashing slot")
	}
	if _, err := h.Hash(ctx, []byte("pw")); err == nil {
		t.Fatal("Hash succeeded without a hashing slot")
	}
}

func TestHasher_DummyVerify(t *testing.T) {
	h := NewHasher(4, 1)
	if h.DummyVerify(context.Background(), []byte("anything")) {
		t.Fatal("DummyVerify returned true")
	}
	if h.dummy == "" {
		t.Fatal("dummy hash not initialised")
	}
}
