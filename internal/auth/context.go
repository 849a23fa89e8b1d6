// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	Subject   string // user id from the "sub" claim
	SessionID string // empty unless the token is pinned to a session
}

// CanAccessSession reports whether the caller may act on sessionID.
// A nil AuthContext means authentication is disabled.
func (a *AuthContext) CanAccessSession(sessionID string) bool {
	if a == nil || a.SessionID == "" {
		return true
	}
	return a.SessionID == sessionID
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
