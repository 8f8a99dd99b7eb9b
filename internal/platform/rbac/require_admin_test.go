package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"trading-bot-dashboard/backend/internal/server/interceptors"
)

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		wantID  string
		wantErr error
	}{
		{"no identity", context.Background(), "", ErrUnauthenticated},
		{"empty user", interceptors.WithIdentity(context.Background(), interceptors.Identity{Role: "admin"}), "", ErrUnauthenticated},
		{"operator", interceptors.WithIdentity(context.Background(), interceptors.Identity{UserID: "u1", Role: "operator"}), "", ErrPermissionDenied},
		{"admin", interceptors.WithIdentity(context.Background(), interceptors.Identity{UserID: "u2", Role: "admin"}), "u2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := RequireAdmin(tt.ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := AdminOnly(next)

	cases := []struct {
		identity *interceptors.Identity
		want     int
	}{
		{nil, http.StatusUnauthorized},
		{&interceptors.Identity{UserID: "u1", Role: "viewer"}, http.StatusForbidden},
		{&interceptors.Identity{UserID: "u2", Role: "admin"}, http.StatusNoContent},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/users/u1/sessions", nil)
		if c.identity != nil {
			req = req.WithContext(interceptors.WithIdentity(req.Context(), *c.identity))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("identity %+v: status = %d, want %d", c.identity, rec.Code, c.want)
		}
	}
}
