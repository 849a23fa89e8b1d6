// ABOUTME: HTTP middleware for JWT authentication on API and WebSocket endpoints
// ABOUTME: Extracts the bearer token and adds the caller's identity to the context

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// ErrorWriter writes an authentication failure response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken returns the bearer token, falling back to the access_token
// query parameter used by WebSocket clients.
func requestToken(r *http.Request) (string, string) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" && r.Header.Get("Authorization") == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, ""
		}
	}
	return token, errMsg
}

// HTTPAuthMiddleware creates an HTTP middleware that validates JWT tokens and
// attaches an AuthContext to the request.
func HTTPAuthMiddleware(verifier TokenVerifier, onError ErrorWriter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := requestToken(r)
			if errMsg != "" {
				onError(w, r, http.StatusUnauthorized, errMsg)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("auth failure", "reason", err.Error(), "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				onError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			authCtx := &AuthContext{Subject: claims.Subject, SessionID: claims.SessionID}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
