package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authhandler "trading-bot-dashboard/backend/internal/auth/handler"
	healthhandler "trading-bot-dashboard/backend/internal/health/handler"
	"trading-bot-dashboard/backend/internal/server/interceptors"
)

// HealthPath is served without authentication and excluded from request logs.
const HealthPath = "/healthz"

// Deps holds the handlers mounted on the HTTP router.
type Deps struct {
	Auth *authhandler.Handler
	// RequireAuth guards routes that need a caller identity (interceptors.RequireAuth).
	RequireAuth func(http.Handler) http.Handler
	// Health serves HealthPath. If nil, a handler with no checks is used.
	Health http.Handler
	Log    zerolog.Logger
}

// NewHTTPHandler builds the router: request id, panic recovery, client IP
// resolution and request logging, wrapped in an otelhttp span per request.
func NewHTTPHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(interceptors.ClientIPMiddleware)
	r.Use(interceptors.RequestLogger(deps.Log, HealthPath))

	health := deps.Health
	if health == nil {
		health = healthhandler.New(nil)
	}
	r.Method(http.MethodGet, HealthPath, health)

	if deps.Auth != nil {
		deps.Auth.Mount(r, deps.RequireAuth)
	}

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != HealthPath
		}),
	)
}
