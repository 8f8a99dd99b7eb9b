// Package handler exposes the auth service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	auditdomain "trading-bot-dashboard/backend/internal/audit/domain"
	"trading-bot-dashboard/backend/internal/auth/service"
	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/platform/rbac"
	"trading-bot-dashboard/backend/internal/ratelimit"
	"trading-bot-dashboard/backend/internal/server/interceptors"
	sessiondomain "trading-bot-dashboard/backend/internal/session/domain"
	"trading-bot-dashboard/backend/internal/transport"
	userdomain "trading-bot-dashboard/backend/internal/user/domain"
)

const maxBodyBytes = 1 << 20

// AuthService is the subset of service.AuthService served over HTTP.
type AuthService interface {
	Login(ctx context.Context, email, password string, origin sessiondomain.Origin) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*userdomain.Profile, error)
	Refresh(ctx context.Context, refreshToken string, origin sessiondomain.Origin) (*service.AuthResult, error)
	Register(ctx context.Context, in service.RegisterInput, ip string) (*userdomain.Profile, error)
	CheckAvailability(ctx context.Context, username, ip string) (bool, error)
	RequestPasswordReset(ctx context.Context, email, ip string) error
	ResetPassword(ctx context.Context, token, newPassword, ip string) error
	ListSessions(ctx context.Context, userID, currentRefresh string) ([]sessiondomain.Meta, error)
	ListUserSessions(ctx context.Context, actor service.Actor, userID string) ([]sessiondomain.Meta, error)
	TerminateSession(ctx context.Context, actor service.Actor, sessionID string) error
	LogoutEverywhere(ctx context.Context, userID string) (int64, error)
	SetUserStatus(ctx context.Context, actor service.Actor, userID string, status userdomain.UserStatus) error
}

// AuditReader lists a user's audit trail.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

// Handler serves the /auth and /admin/users routes.
type Handler struct {
	svc    AuthService
	tokens *transport.TokenTransport
	audit  AuditReader
	log    zerolog.Logger
	now    func() time.Time
}

// New returns a Handler. audit may be nil, in which case the audit route is not mounted.
func New(svc AuthService, tokens *transport.TokenTransport, audit AuditReader, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, audit: audit, log: log, now: time.Now}
}

// Mount registers the routes on r. requireAuth guards every route that needs a caller identity.
func (h *Handler) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.Get("/me", h.Me)
		r.Post("/register", h.Register)
		r.Get("/availability", h.Availability)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions/{id}", h.TerminateSession)
			r.Post("/sessions/revoke-all", h.RevokeAll)
		})
	})
	r.Route("/admin/users/{id}", func(r chi.Router) {
		r.Use(requireAuth, rbac.AdminOnly)
		r.Get("/sessions", h.ListUserSessions)
		r.Put("/status", h.SetUserStatus)
		if h.audit != nil {
			r.Get("/audit", h.ListUserAudit)
		}
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User userdomain.Profile `json:"user"`
}

// Login verifies credentials and sets both token cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, origin(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.tokens.Write(w, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, userResponse{User: res.Profile})
}

// Logout revokes the presented refresh token and clears both cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	refresh, _ := h.tokens.Refresh(r)
	err := h.svc.Logout(r.Context(), refresh)
	h.tokens.Clear(w)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh rotates the refresh token. On failure both cookies are cleared.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh, ok := h.tokens.Refresh(r)
	if !ok {
		h.tokens.Clear(w)
		h.writeError(w, r, service.ErrAuthenticationFailed)
		return
	}
	res, err := h.svc.Refresh(r.Context(), refresh, origin(r))
	if err != nil {
		h.tokens.Clear(w)
		h.writeError(w, r, err)
		return
	}
	h.tokens.Write(w, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, userResponse{User: res.Profile})
}

// Me returns the caller's profile, or 401.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	access, _ := h.tokens.Access(r)
	p, err := h.svc.CurrentUser(r.Context(), access)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if p == nil {
		h.writeError(w, r, service.ErrAuthenticationFailed)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: *p})
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a pending account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"user":   p,
		"status": userdomain.UserStatusPending,
	})
}

// Availability reports whether ?username= is free.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.CheckAvailability(r.Context(), r.URL.Query().Get("username"), clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset always answers 202 unless rate limited.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email, clientIP(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type confirmResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ConfirmPasswordReset sets a new password from a reset token.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password, clientIP(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.tokens.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type sessionsResponse struct {
	Sessions []sessiondomain.Meta `json:"sessions"`
}

// ListSessions returns the caller's sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	current, _ := h.tokens.Refresh(r)
	list, err := h.svc.ListSessions(r.Context(), actor.UserID, current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: list})
}

// TerminateSession ends one session of the caller, or any session for admins.
func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TerminateSession(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll ends every session of the caller, including the current one.
func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.LogoutEverywhere(r.Context(), actorFrom(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.tokens.Clear(w)
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

// ListUserSessions returns another user's sessions. Admin only.
func (h *Handler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListUserSessions(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: list})
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetUserStatus approves, rejects or disables an account. Admin only.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.SetUserStatus(r.Context(), actorFrom(r), chi.URLParam(r, "id"), userdomain.UserStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type auditEntry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	IP        string          `json:"ip"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListUserAudit returns a page of a user's audit trail (?limit=, ?offset=). Admin only.
func (h *Handler) ListUserAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	logs, err := h.audit.ListByUser(r.Context(), chi.URLParam(r, "id"), int32(limit), int32(offset))
	if err != nil {
		lg := logging.WithTrace(r.Context(), h.log)
		lg.Error().Err(err).Msg("list audit failed")
		h.writeError(w, r, service.ErrUnavailable)
		return
	}
	out := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		e := auditEntry{ID: l.ID, Action: l.Action, Resource: l.Resource, IP: l.IP, CreatedAt: l.CreatedAt}
		if l.Metadata != "" && json.Valid([]byte(l.Metadata)) {
			e.Metadata = json.RawMessage(l.Metadata)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

// writeError maps service errors to status codes. Unknown errors are logged and reported as 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *service.RateLimitedError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(h.now())))
		writeJSON(w, http.StatusTooManyRequests, errorBody(rl.Error()))
	case errors.Is(err, service.ErrAuthenticationFailed):
		writeJSON(w, http.StatusUnauthorized, errorBody(service.ErrAuthenticationFailed.Error()))
	case errors.Is(err, service.ErrAccountInactive):
		writeJSON(w, http.StatusForbidden, errorBody(service.ErrAccountInactive.Error()))
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody(service.ErrForbidden.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, service.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(service.ErrUnavailable.Error()))
	default:
		lg := logging.WithTrace(r.Context(), h.log)
		lg.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return false
	}
	return true
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if ip := interceptors.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return ratelimit.ClientIP(r)
}

func origin(r *http.Request) sessiondomain.Origin {
	return sessiondomain.Origin{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}

func actorFrom(r *http.Request) service.Actor {
	id, _ := interceptors.GetIdentity(r.Context())
	return service.Actor{UserID: id.UserID, Role: id.Role}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
