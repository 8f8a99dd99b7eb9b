package telemetry

import (
	"context"

	"trading-bot-dashboard/backend/internal/telemetry/domain"
)

// EventEmitter emits auth events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
