package interceptors

import "context"

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientIPKey = contextKey{"client_ip"}
)

// Identity is the authenticated caller attached to a request context by RequireAuth.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Role     string
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the identity from context and true if set; otherwise a zero Identity, false.
func GetIdentity(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// WithClientIP returns a context carrying the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the client IP stored by ClientIPMiddleware, or "".
// Its signature matches audit.IPExtractor.
func ClientIPFromContext(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
