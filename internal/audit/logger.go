package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/audit/domain"
	auditrepo "trading-bot-dashboard/backend/internal/audit/repository"
	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/telemetry"
	telemetrydomain "trading-bot-dashboard/backend/internal/telemetry/domain"
)

// writeTimeout bounds a single audit row insert.
const writeTimeout = 2 * time.Second

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, an optional IP extractor
// and an optional telemetry emitter that mirrors each event as an OTel log record.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
	log         zerolog.Logger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// repo, ipExtractor and emitter may be nil; a nil ipExtractor records IP as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter, log: log, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.Event{
		Type:      action,
		UserID:    userID,
		IP:        ip,
		Metadata:  []byte(metadata),
		CreatedAt: entry.CreatedAt,
	})
	if l.repo == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := l.repo.Create(writeCtx, entry); err != nil {
		lg := logging.WithTrace(ctx, l.log)
		lg.Warn().Err(err).Str("action", action).Str("resource", resource).Msg("audit: failed to log event")
	}
}
