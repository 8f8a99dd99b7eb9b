package rbac

import (
	"context"
	"errors"
	"net/http"

	"trading-bot-dashboard/backend/internal/server/interceptors"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no identity is attached to the context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied is returned when the caller is not an admin.
	ErrPermissionDenied = errors.New("admin role required")
)

// RequireAdmin ensures the caller is authenticated and holds the admin role.
// Returns the caller's user id on success.
func RequireAdmin(ctx context.Context) (userID string, err error) {
	id, ok := interceptors.GetIdentity(ctx)
	if !ok || id.UserID == "" {
		return "", ErrUnauthenticated
	}
	if id.Role != userdomain.RoleAdmin {
		return "", ErrPermissionDenied
	}
	return id.UserID, nil
}

// AdminOnly is HTTP middleware around RequireAdmin. It must run after interceptors.RequireAuth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireAdmin(r.Context()); err != nil {
			code := http.StatusForbidden
			if errors.Is(err, ErrUnauthenticated) {
				code = http.StatusUnauthorized
			}
			http.Error(w, err.Error(), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}
