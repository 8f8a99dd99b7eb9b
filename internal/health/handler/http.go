// Package handler serves the liveness/readiness endpoint.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Pinger reports whether a dependency is reachable (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Check reports whether one dependency is healthy.
type Check func(ctx context.Context) error

// PingCheck adapts a Pinger to a Check.
func PingCheck(p Pinger) Check {
	return p.PingContext
}

const checkTimeout = 2 * time.Second

// Handler answers GET /healthz. With no checks it always reports serving.
type Handler struct {
	checks map[string]Check
}

// New returns a Handler running checks on every request. Nil checks are ignored.
func New(checks map[string]Check) *Handler {
	c := make(map[string]Check, len(checks))
	for name, fn := range checks {
		if fn != nil {
			c[name] = fn
		}
	}
	return &Handler{checks: c}
}

type response struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	var failed []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	code, resp := http.StatusOK, response{Status: "serving"}
	if len(failed) > 0 {
		code, resp = http.StatusServiceUnavailable, response{Status: "not_serving", Failed: failed}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
