package service

import (
	"context"

	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/logging"
)

// Notifier delivers out-of-band messages. Delivery itself lives outside this module.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogNotifier records that a reset was issued. The raw token is written only when
// IncludeToken is set, which config forbids in production.
type LogNotifier struct {
	Log          zerolog.Logger
	IncludeToken bool
}

func (n LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	lg := logging.WithTrace(ctx, n.Log)
	ev := lg.Info().Str("email", email)
	if n.IncludeToken {
		ev = ev.Str("reset_token", token)
	}
	ev.Msg("password reset issued")
	return nil
}
