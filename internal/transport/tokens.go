package transport

import (
	"net/http"
	"strings"
	"time"
)

// RefreshPath scopes the refresh cookie to the auth endpoints.
const RefreshPath = "/auth"

const bearerPrefix = "bearer "

// Options configure TokenTransport.
type Options struct {
	Secure     bool
	Domain     string
	SameSite   http.SameSite
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenTransport writes, reads and clears the access/refresh pair.
type TokenTransport struct {
	carrier Carrier
	access  Attributes
	refresh Attributes
}

// NewTokenTransport returns a TokenTransport over carrier (CookieCarrier when nil).
func NewTokenTransport(carrier Carrier, opts Options) *TokenTransport {
	if carrier == nil {
		carrier = CookieCarrier{}
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	base := Attributes{Domain: opts.Domain, Secure: opts.Secure, HTTPOnly: true, SameSite: opts.SameSite}
	access, refresh := base, base
	access.Path, access.MaxAge = "/", opts.AccessTTL
	refresh.Path, refresh.MaxAge = RefreshPath, opts.RefreshTTL
	return &TokenTransport{carrier: carrier, access: access, refresh: refresh}
}

// Write sets both values on w.
func (t *TokenTransport) Write(w http.ResponseWriter, accessToken, refreshToken string) {
	t.carrier.Set(w, AccessTokenName, accessToken, t.access)
	t.carrier.Set(w, RefreshTokenName, refreshToken, t.refresh)
}

// Clear expires both values.
func (t *TokenTransport) Clear(w http.ResponseWriter) {
	t.carrier.Clear(w, AccessTokenName, t.access)
	t.carrier.Clear(w, RefreshTokenName, t.refresh)
}

// Access returns the access token from an "Authorization: Bearer" header, or
// from the access cookie.
func (t *TokenTransport) Access(r *http.Request) (string, bool) {
	if tok := bearer(r.Header.Get("Authorization")); tok != "" {
		return tok, true
	}
	return t.carrier.Get(r, AccessTokenName)
}

// Refresh returns the refresh token, if the client sent one.
func (t *TokenTransport) Refresh(r *http.Request) (string, bool) {
	return t.carrier.Get(r, RefreshTokenName)
}

// bearer returns the token from an Authorization header value, or "" if missing or malformed.
func bearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
