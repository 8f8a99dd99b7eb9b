package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/telemetry"
)

// Action names a rate-limited entry point.
type Action string

const (
	ActionRegister      Action = "register"
	ActionLogin         Action = "login"
	ActionPasswordReset Action = "password_reset"
	ActionResetConfirm  Action = "password_reset_confirm"
	ActionAvailability  Action = "availability"
)

// Dimension names what an attempt is counted against.
type Dimension string

const (
	DimensionIP    Dimension = "ip"
	DimensionEmail Dimension = "email"
)

// Rule caps attempts along one dimension.
type Rule struct {
	Dimension   Dimension
	MaxAttempts int
	Window      time.Duration
}

// Policy is the set of rules for one action. All rules must allow an attempt.
type Policy []Rule

// DefaultPolicies is the auth policy table.
var DefaultPolicies = map[Action]Policy{
	ActionRegister: {
		{Dimension: DimensionIP, MaxAttempts: 3, Window: time.Hour},
		{Dimension: DimensionEmail, MaxAttempts: 5, Window: 24 * time.Hour},
	},
	ActionLogin: {
		{Dimension: DimensionIP, MaxAttempts: 10, Window: 15 * time.Minute},
		{Dimension: DimensionEmail, MaxAttempts: 5, Window: 15 * time.Minute},
	},
	ActionPasswordReset: {
		{Dimension: DimensionIP, MaxAttempts: 3, Window: time.Hour},
		{Dimension: DimensionEmail, MaxAttempts: 3, Window: time.Hour},
	},
	ActionResetConfirm: {
		{Dimension: DimensionIP, MaxAttempts: 5, Window: time.Hour},
	},
	ActionAvailability: {
		{Dimension: DimensionIP, MaxAttempts: 30, Window: time.Minute},
	},
}

// Subject carries the value for each dimension of one attempt. Rules whose
// dimension has no (or an empty) value are not evaluated.
type Subject map[Dimension]string

// Verdict is the combined outcome of every rule of a policy.
type Verdict struct {
	Allowed bool
	// ResetAt is the latest reset time among the denying rules; zero when allowed.
	ResetAt time.Time
	// Denied lists the dimensions that denied the attempt.
	Denied []Dimension
}

// Gate applies a policy table to a Limiter.
type Gate struct {
	limiter  Limiter
	policies map[Action]Policy
	metrics  *telemetry.AuthMetrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewGate returns a Gate. A nil policies map uses DefaultPolicies; metrics may be nil.
func NewGate(limiter Limiter, policies map[Action]Policy, metrics *telemetry.AuthMetrics, log zerolog.Logger) *Gate {
	if policies == nil {
		policies = DefaultPolicies
	}
	return &Gate{limiter: limiter, policies: policies, metrics: metrics, log: log, now: time.Now}
}

// WithClock replaces the time source used for fail-closed reset times.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	if now != nil {
		g.now = now
	}
	return g
}

// Identifier builds the counter key for one rule, e.g. "login:ip:203.0.113.4".
func Identifier(action Action, dim Dimension, value string) string {
	return string(action) + ":" + string(dim) + ":" + value
}

// Check counts the attempt against every rule of action's policy and allows it
// only if all rules allow it. Every rule is counted even after one denies. A
// limiter error denies the attempt for that rule's full window.
func (g *Gate) Check(ctx context.Context, action Action, subject Subject) Verdict {
	policy, ok := g.policies[action]
	if !ok {
		return Verdict{Allowed: true}
	}
	v := Verdict{Allowed: true}
	for _, rule := range policy {
		value := strings.TrimSpace(subject[rule.Dimension])
		if value == "" {
			continue
		}
		d, err := g.limiter.CheckLimit(ctx, Identifier(action, rule.Dimension, value), rule.MaxAttempts, rule.Window)
		if err != nil {
			lg := logging.WithTrace(ctx, g.log)
			lg.Error().Err(err).Str("action", string(action)).Str("dimension", string(rule.Dimension)).
				Msg("rate limiter unavailable; denying attempt")
			d = Decision{Allowed: false, ResetAt: g.now().Add(rule.Window)}
		}
		if d.Allowed {
			continue
		}
		v.Allowed = false
		v.Denied = append(v.Denied, rule.Dimension)
		if d.ResetAt.After(v.ResetAt) {
			v.ResetAt = d.ResetAt
		}
		g.metrics.RateLimitDenied(ctx, string(action), string(rule.Dimension))
	}
	return v
}
