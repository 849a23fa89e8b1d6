// Package auth provides bearer-token authentication for the realtime gateway.
//
// # Tokens
//
// Clients authenticate with HS256 JWTs signed with the configured jwt_secret.
// The "sub" claim names the user; an optional "sid" claim pins the token to
// one session, in which case requests for other sessions are rejected.
//
// # HTTP
//
// HTTPAuthMiddleware reads the token from the Authorization header, or from
// the access_token query parameter for WebSocket upgrades where browsers
// cannot set headers. On success the AuthContext is attached to the request
// context:
//
//	authCtx := auth.FromContext(r.Context())
//	if !authCtx.CanAccessSession(sessionID) { ... }
//
// # gRPC
//
// UnaryInterceptor applies the same check to gRPC calls, reading the token
// from the "authorization" metadata key. Methods listed as public (such as
// the health service) skip authentication.
//
// When no secret is configured the gateway runs without these middlewares.
package auth
