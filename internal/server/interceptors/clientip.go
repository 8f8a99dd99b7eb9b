package interceptors

import (
	"net/http"

	"trading-bot-dashboard/backend/internal/ratelimit"
)

// ClientIPMiddleware resolves the client IP once per request and stores it in the
// context for rate limiting and audit.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), ratelimit.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
