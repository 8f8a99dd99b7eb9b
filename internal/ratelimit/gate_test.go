package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGate_AllRulesMustAllow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(0).WithClock(clock.Now)
	g := NewGate(l, nil, nil, zerolog.Nop())
	ctx := context.Background()

	// Five attempts on one email from five IPs exhaust the email rule only.
	for i := 0; i < 5; i++ {
		v := g.Check(ctx, ActionLogin, Subject{DimensionIP: string(rune('a' + i)), DimensionEmail: "ops@example.com"})
		if !v.Allowed {
			t.Fatalf("attempt %d denied: %+v", i+1, v)
		}
	}
	v := g.Check(ctx, ActionLogin, Subject{DimensionIP: "fresh-ip", DimensionEmail: "ops@example.com"})
	if v.Allowed || len(v.Denied) != 1 || v.Denied[0] != DimensionEmail {
		t.Fatalf("verdict = %+v, want denied on email", v)
	}
	// The denied attempt still counted against the fresh IP.
	d, _ := l.CheckLimit(ctx, Identifier(ActionLogin, DimensionIP, "fresh-ip"), 10, 15*time.Minute)
	if d.Remaining != 8 {
		t.Errorf("fresh-ip remaining = %d, want 8", d.Remaining)
	}
}

func TestGate_LatestResetAtAmongDenials(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(0).WithClock(clock.Now)
	policies := map[Action]Policy{
		ActionLogin: {
			{Dimension: DimensionIP, MaxAttempts: 1, Window: time.Minute},
			{Dimension: DimensionEmail, MaxAttempts: 1, Window: time.Hour},
		},
	}
	g := NewGate(l, policies, nil, zerolog.Nop())
	ctx := context.Background()
	subj := Subject{DimensionIP: "1.1.1.1", DimensionEmail: "a@b.c"}
	start := clock.Now()

	if v := g.Check(ctx, ActionLogin, subj); !v.Allowed {
		t.Fatal("first attempt denied")
	}
	v := g.Check(ctx, ActionLogin, subj)
	if v.Allowed || len(v.Denied) != 2 {
		t.Fatalf("verdict = %+v", v)
	}
	if !v.ResetAt.Equal(start.Add(time.Hour)) {
		t.Errorf("ResetAt = %v, want %v", v.ResetAt, start.Add(time.Hour))
	}
}

func TestGate_SkipsMissingDimensions(t *testing.T) {
	l := NewMemoryLimiter(0)
	g := NewGate(l, nil, nil, zerolog.Nop())
	if v := g.Check(context.Background(), ActionAvailability, Subject{DimensionIP: "1.1.1.1", DimensionEmail: "x@y.z"}); !v.Allowed {
		t.Fatal("availability denied")
	}
	if v := g.Check(context.Background(), ActionLogin, Subject{DimensionIP: "1.1.1.1", DimensionEmail: "  "}); !v.Allowed {
		t.Fatal("login denied")
	}
	if l.Len() != 2 {
		t.Errorf("tracked identifiers = %d, want 2 (blank email and unused email dimension skipped)", l.Len())
	}
}

func TestGate_UnknownActionAllowed(t *testing.T) {
	g := NewGate(NewMemoryLimiter(0), nil, nil, zerolog.Nop())
	if v := g.Check(context.Background(), Action("export"), Subject{DimensionIP: "1.1.1.1"}); !v.Allowed {
		t.Fatalf("verdict = %+v", v)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) CheckLimit(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func TestGate_LimiterErrorFailsClosed(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(brokenLimiter{}, nil, nil, zerolog.Nop()).WithClock(clock.Now)
	v := g.Check(context.Background(), ActionPasswordReset, Subject{DimensionIP: "1.1.1.1"})
	if v.Allowed {
		t.Fatal("limiter failure must deny")
	}
	if !v.ResetAt.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("ResetAt = %v, want now+window", v.ResetAt)
	}
}

func TestIdentifier(t *testing.T) {
	if got := Identifier(ActionLogin, DimensionIP, "203.0.113.4"); got != "login:ip:203.0.113.4" {
		t.Errorf("Identifier = %q", got)
	}
}

func TestDefaultPolicies(t *testing.T) {
	want := map[Action]map[Dimension]Rule{
		ActionRegister:      {DimensionIP: {DimensionIP, 3, time.Hour}, DimensionEmail: {DimensionEmail, 5, 24 * time.Hour}},
		ActionLogin:         {DimensionIP: {DimensionIP, 10, 15 * time.Minute}, DimensionEmail: {DimensionEmail, 5, 15 * time.Minute}},
		ActionPasswordReset: {DimensionIP: {DimensionIP, 3, time.Hour}, DimensionEmail: {DimensionEmail, 3, time.Hour}},
		ActionResetConfirm:  {DimensionIP: {DimensionIP, 5, time.Hour}},
		ActionAvailability:  {DimensionIP: {DimensionIP, 30, time.Minute}},
	}
	for action, rules := range want {
		policy := DefaultPolicies[action]
		if len(policy) != len(rules) {
			t.Errorf("%s: %d rules, want %d", action, len(policy), len(rules))
			continue
		}
		for _, r := range policy {
			if rules[r.Dimension] != r {
				t.Errorf("%s/%s = %+v, want %+v", action, r.Dimension, r, rules[r.Dimension])
			}
		}
	}
}
