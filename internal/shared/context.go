package shared

import "context"

type sessionContextKey struct{}

// AuthContext describes the authenticated actor for an operation. It is passed
// explicitly into services instead of being read from process-wide state.
type AuthContext struct {
	UserID   int64
	TenantID int64
	Role     string
	Elevated bool
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// AuthFromContext extracts the actor identity from the request session.
// ok is false when the session is absent or anonymous.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return AuthContext{}, false
	}
	return sess.Identity()
}
