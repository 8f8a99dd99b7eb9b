// Package transport moves the access and refresh bearer values across the HTTP
// boundary. Callers depend on Carrier; CookieCarrier is the browser implementation.
package transport

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names for the two bearer values.
const (
	AccessTokenName  = "access_token"
	RefreshTokenName = "refresh_token"
)

// Attributes describe how a value is stored on the client.
type Attributes struct {
	MaxAge   time.Duration
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Carrier reads and writes named values on a request/response pair.
type Carrier interface {
	Get(r *http.Request, name string) (string, bool)
	Set(w http.ResponseWriter, name, value string, attrs Attributes)
	Clear(w http.ResponseWriter, name string, attrs Attributes)
}

// CookieCarrier stores values as cookies.
type CookieCarrier struct{}

// Get returns the cookie value for name; ok is false when absent or empty.
func (CookieCarrier) Get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set writes a cookie with attrs.
func (CookieCarrier) Set(w http.ResponseWriter, name, value string, attrs Attributes) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		MaxAge:   int(attrs.MaxAge / time.Second),
		Secure:   attrs.Secure,
		HttpOnly: attrs.HTTPOnly,
		SameSite: attrs.SameSite,
	})
}

// Clear expires the cookie. Path and Domain must match those used by Set.
func (CookieCarrier) Clear(w http.ResponseWriter, name string, attrs Attributes) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   attrs.Secure,
		HttpOnly: attrs.HTTPOnly,
		SameSite: attrs.SameSite,
	})
}

// ParseSameSite maps "strict", "none" and "lax" (default) to http.SameSite.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
