package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"trading-bot-dashboard/backend/internal/auth/service"
	"trading-bot-dashboard/backend/internal/ratelimit"
	"trading-bot-dashboard/backend/internal/security"
	"trading-bot-dashboard/backend/internal/server/interceptors"
	sessionrepo "trading-bot-dashboard/backend/internal/session/repository"
	sessionsvc "trading-bot-dashboard/backend/internal/session/service"
	"trading-bot-dashboard/backend/internal/transport"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
	userrepo "trading-bot-dashboard/backend/internal/user/repository"
	usersvc "trading-bot-dashboard/backend/internal/user/service"
)

const testPassword = "Correct-Horse-42"

func newTestRouter(t *testing.T) (http.Handler, *userrepo.MemoryRepository) {
	t.Helper()
	users := userrepo.NewMemoryRepository()
	store := sessionsvc.NewStore(sessionrepo.NewMemoryRepository(users.IsActive), 0, time.Second)
	hasher := security.NewHasher(4, 0)
	svc := service.NewAuthService(service.Deps{
		Users:    users,
		Reader:   usersvc.NewCachedReader(users, 0),
		Sessions: store,
		Hasher:   hasher,
		Tokens:   security.NewTestHMACTokenProvider(),
		Gate:     ratelimit.NewGate(ratelimit.NewMemoryLimiter(0), nil, nil, zerolog.Nop()),
		Log:      zerolog.Nop(),
	}, service.Options{})

	for _, u := range []struct{ id, email, role string }{
		{"u1", "alice@example.com", "operator"},
		{"admin", "root@example.com", userdomain.RoleAdmin},
	} {
		hash, err := hasher.Hash(context.Background(), []byte(testPassword))
		if err != nil {
			t.Fatal(err)
		}
		if err := users.Create(context.Background(), &userdomain.User{
			ID: u.id, Email: u.email, Username: u.id, PasswordHash: hash, Role: u.role, Status: userdomain.UserStatusActive,
		}); err != nil {
			t.Fatal(err)
		}
	}

	tokens := transport.NewTokenTransport(nil, transport.Options{})
	h := New(svc, tokens, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Use(interceptors.ClientIPMiddleware)
	h.Mount(r, interceptors.RequireAuth(svc, tokens, "/login", zerolog.Nop()))
	return r, users
}

func do(h http.Handler, method, path, body string, cookies []*http.Cookie, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func login(t *testing.T, h http.Handler, email string) []*http.Cookie {
	t.Helper()
	rec := do(h, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+testPassword+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body)
	}
	access, refresh := cookie(rec, transport.AccessTokenName), cookie(rec, transport.RefreshTokenName)
	if access == nil || refresh == nil {
		t.Fatal("login did not set both cookies")
	}
	return []*http.Cookie{access, refresh}
}

func TestLogin_SetsCookiesAndMe(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"`+testPassword+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	refresh := cookie(rec, transport.RefreshTokenName)
	if refresh == nil || !refresh.HttpOnly || refresh.Path != transport.RefreshPath {
		t.Fatalf("refresh cookie = %+v", refresh)
	}
	var body struct {
		User userdomain.Profile `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.User.ID != "u1" {
		t.Fatalf("body = %s (%v)", rec.Body, err)
	}

	me := do(h, http.MethodGet, "/auth/me", "", []*http.Cookie{cookie(rec, transport.AccessTokenName)})
	if me.Code != http.StatusOK {
		t.Fatalf("/auth/me status = %d", me.Code)
	}
	if anon := do(h, http.MethodGet, "/auth/me", "", nil); anon.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous /auth/me = %d", anon.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"nope"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid credentials") {
		t.Errorf("body = %s", rec.Body)
	}
	if cookie(rec, transport.AccessTokenName) != nil {
		t.Error("cookie set on failed login")
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	h, _ := newTestRouter(t)
	if rec := do(h, http.MethodPost, "/auth/login", `{"email":`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	h, _ := newTestRouter(t)
	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = do(h, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"nope"}`, nil)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	ra, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || ra < 1 || ra > 15*60 {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	h, _ := newTestRouter(t)
	cookies := login(t, h, "alice@example.com")

	rec := do(h, http.MethodPost, "/auth/refresh", "", cookies[1:])
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rec.Code, rec.Body)
	}
	next := cookie(rec, transport.RefreshTokenName)
	if next == nil || next.Value == cookies[1].Value {
		t.Fatal("refresh cookie not rotated")
	}

	replay := do(h, http.MethodPost, "/auth/refresh", "", cookies[1:])
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d", replay.Code)
	}
	if c := cookie(replay, transport.RefreshTokenName); c == nil || c.MaxAge >= 0 {
		t.Errorf("replay did not clear refresh cookie: %+v", c)
	}
	if missing := do(h, http.MethodPost, "/auth/refresh", "", nil); missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing cookie status = %d", missing.Code)
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	h, _ := newTestRouter(t)
	cookies := login(t, h, "alice@example.com")

	rec := do(h, http.MethodPost, "/auth/logout", "", cookies)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, name := range []string{transport.AccessTokenName, transport.RefreshTokenName} {
		if c := cookie(rec, name); c == nil || c.MaxAge >= 0 {
			t.Errorf("%s not cleared: %+v", name, c)
		}
	}
	if again := do(h, http.MethodPost, "/auth/refresh", "", cookies[1:]); again.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d", again.Code)
	}
}

func TestSessions_RequireAuth(t *testing.T) {
	h, _ := newTestRouter(t)
	if rec := do(h, http.MethodGet, "/auth/sessions", "", nil, "Accept", "application/json"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec := do(h, http.MethodGet, "/auth/sessions", "", nil, "Accept", "text/html")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("html status = %d location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSessions_ListAndTerminate(t *testing.T) {
	h, _ := newTestRouter(t)
	first := login(t, h, "alice@example.com")
	second := login(t, h, "alice@example.com")

	rec := do(h, http.MethodGet, "/auth/sessions", "", first)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || len(body.Sessions) != 2 {
		t.Fatalf("sessions = %s (%v)", rec.Body, err)
	}
	var other string
	for _, s := range body.Sessions {
		if !s.Current {
			other = s.ID
		}
	}
	if other == "" {
		t.Fatal("no non-current session")
	}
	if del := do(h, http.MethodDelete, "/auth/sessions/"+other, "", first); del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", del.Code)
	}
	if gone := do(h, http.MethodDelete, "/auth/sessions/"+other, "", first); gone.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", gone.Code)
	}
	if rec := do(h, http.MethodPost, "/auth/refresh", "", second[1:]); rec.Code != http.StatusUnauthorized {
		t.Fatalf("terminated session refreshed: %d", rec.Code)
	}
	// The terminated session's access token keeps working until it expires.
	if me := do(h, http.MethodGet, "/auth/me", "", second[:1]); me.Code != http.StatusOK {
		t.Fatalf("access token of terminated session: %d", me.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	h, users := newTestRouter(t)
	alice := login(t, h, "alice@example.com")
	admin := login(t, h, "root@example.com")

	if rec := do(h, http.MethodGet, "/admin/users/u1/sessions", "", alice); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/admin/users/u1/sessions", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}

	if rec := do(h, http.MethodPut, "/admin/users/u1/status", `{"status":"disabled"}`, admin); rec.Code != http.StatusNoContent {
		t.Fatalf("set status = %d body=%s", rec.Code, rec.Body)
	}
	u, _ := users.GetByID(context.Background(), "u1")
	if u.Status != userdomain.UserStatusDisabled {
		t.Fatalf("status = %q", u.Status)
	}
	if rec := do(h, http.MethodGet, "/auth/me", "", alice[:1]); rec.Code != http.StatusUnauthorized {
		t.Fatalf("disabled user /auth/me = %d", rec.Code)
	}
	if rec := do(h, http.MethodPut, "/admin/users/u1/status", `{"status":"bogus"}`, admin); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status = %d", rec.Code)
	}
}

func TestRegisterAndAvailability(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(h, http.MethodPost, "/auth/register",
		`{"email":"new@example.com","username":"newbie","password":"`+testPassword+`"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(h, http.MethodGet, "/auth/availability?username=newbie", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Fatalf("availability = %d %s", rec.Code, rec.Body)
	}
	rec = do(h, http.MethodPost, "/auth/login", `{"email":"new@example.com","password":"`+testPassword+`"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pending login = %d", rec.Code)
	}
	if bad := do(h, http.MethodPost, "/auth/register", `{"email":"x","username":"y","password":"z"}`, nil); bad.Code != http.StatusBadRequest {
		t.Fatalf("invalid register = %d", bad.Code)
	}
}

func TestPasswordResetRequest_Always202(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, email := range []string{"alice@example.com", "ghost@example.com"} {
		if rec := do(h, http.MethodPost, "/auth/password-reset", `{"email":"`+email+`"}`, nil); rec.Code != http.StatusAccepted {
			t.Fatalf("%s: status = %d", email, rec.Code)
		}
	}
	if rec := do(h, http.MethodPost, "/auth/password-reset/confirm", `{"token":"nope","password":"`+testPassword+`"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token = %d", rec.Code)
	}
}

func TestPasswordResetConfirm_RateLimited(t *testing.T) {
	h, _ := newTestRouter(t)
	body := `{"token":"guess","password":"` + testPassword + `"}`
	for i := 0; i < 5; i++ {
		if rec := do(h, http.MethodPost, "/auth/password-reset/confirm", body, nil, "X-Forwarded-For", "203.0.113.9"); rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := do(h, http.MethodPost, "/auth/password-reset/confirm", body, nil, "X-Forwarded-For", "203.0.113.9")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec := do(h, http.MethodPost, "/auth/password-reset/confirm", body, nil, "X-Forwarded-For", "203.0.113.10"); rec.Code != http.StatusBadRequest {
		t.Fatalf("other IP: status = %d", rec.Code)
	}
}
