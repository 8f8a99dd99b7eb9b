package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "trading-bot-dashboard/backend/auth"

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeInactive    = "inactive"
	OutcomeReplay      = "replay"
	OutcomeError       = "error"
)

// AuthMetrics holds the OTel instruments for the auth subsystem. A nil *AuthMetrics
// is valid and records nothing.
type AuthMetrics struct {
	loginAttempts metric.Int64Counter
	refreshes     metric.Int64Counter
	denied        metric.Int64Counter
	purged        metric.Int64Counter
}

// NewAuthMetrics creates the auth instruments on provider. A nil provider yields no-op instruments.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	m := provider.Meter(meterName)
	var (
		am  AuthMetrics
		err error
	)
	if am.loginAttempts, err = m.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome.")); err != nil {
		return nil, err
	}
	if am.refreshes, err = m.Int64Counter("auth.refresh",
		metric.WithDescription("Refresh-token rotations by outcome; outcome=replay counts reuse of a spent token.")); err != nil {
		return nil, err
	}
	if am.denied, err = m.Int64Counter("auth.ratelimit.denied",
		metric.WithDescription("Requests denied by the auth rate limiter.")); err != nil {
		return nil, err
	}
	if am.purged, err = m.Int64Counter("auth.sessions.purged",
		metric.WithDescription("Expired session rows removed by the purge sweep.")); err != nil {
		return nil, err
	}
	return &am, nil
}

// LoginAttempt records one login attempt.
func (m *AuthMetrics) LoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Refresh records one refresh attempt.
func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RateLimitDenied records a denial for action on dimension (ip, email).
func (m *AuthMetrics) RateLimitDenied(ctx context.Context, action, dimension string) {
	if m == nil {
		return
	}
	m.denied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("dimension", dimension),
	))
}

// SessionsPurged records n rows removed by one sweep.
func (m *AuthMetrics) SessionsPurged(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(ctx, n)
}
