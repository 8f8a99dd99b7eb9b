package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownIP is the value used when no client address header is present.
const UnknownIP = "unknown"

// ClientIP returns the client address from the first X-Forwarded-For hop, then
// X-Real-IP, else "unknown". RemoteAddr is not consulted; the server must sit
// behind a proxy that overwrites these headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if s := strings.TrimSpace(first); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	return UnknownIP
}
