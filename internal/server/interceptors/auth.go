package interceptors

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/logging"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
)

// Authenticator resolves an access token to the profile of an active user.
// nil, nil means the token is invalid or the account is not active.
type Authenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (*userdomain.Profile, error)
}

// TokenSource extracts the access token from a request.
type TokenSource interface {
	Access(r *http.Request) (string, bool)
}

// RequireAuth rejects requests without a valid access token. Browsers asking for
// HTML are redirected (303) to loginPath; API clients get 401. A failed user
// lookup is logged and rejected the same way.
func RequireAuth(auth Authenticator, tokens TokenSource, loginPath string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := tokens.Access(r)
			var profile *userdomain.Profile
			if token != "" {
				p, err := auth.CurrentUser(r.Context(), token)
				if err != nil {
					lg := logging.WithTrace(r.Context(), log)
					lg.Error().Err(err).Str("path", r.URL.Path).Msg("auth: identity lookup failed")
				} else {
					profile = p
				}
			}
			if profile == nil {
				unauthenticated(w, r, loginPath)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{
				UserID:   profile.ID,
				Email:    profile.Email,
				Username: profile.Username,
				Role:     profile.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter, r *http.Request, loginPath string) {
	if loginPath != "" && wantsHTML(r) {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid credentials"}` + "\n"))
}

// wantsHTML reports whether the request is a page navigation rather than an API call.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
