package interceptors

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/logging"
)

// RequestLogger writes one structured line per request after it completes.
// skipPaths are not logged (e.g. /healthz).
func RequestLogger(log zerolog.Logger, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if skip[r.URL.Path] {
				return
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			lg := logging.WithTrace(r.Context(), log)
			ev := lg.Info()
			if status >= http.StatusInternalServerError {
				ev = lg.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("client_ip", ClientIPFromContext(r.Context())).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
