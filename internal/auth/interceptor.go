// ABOUTME: gRPC interceptor for authenticating requests using JWT bearer tokens
// ABOUTME: Extracts auth from metadata and populates context for handlers

package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(ctx context.Context, logger *slog.Logger, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates
// requests. Methods in publicMethods (full method names) skip authentication.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}

		authCtx, err := extractAuth(ctx, tokens, logger, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(WithAuth(ctx, authCtx), req)
	}
}

func extractAuth(ctx context.Context, tokens TokenVerifier, logger *slog.Logger, method string) (*AuthContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(ctx, logger, "missing metadata", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		logAuthFailure(ctx, logger, "missing authorization", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing authorization")
	}

	token, errMsg := extractBearerToken(values[0])
	if errMsg != "" {
		logAuthFailure(ctx, logger, errMsg, "method", method)
		return nil, status.Error(codes.Unauthenticated, errMsg)
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		logAuthFailure(ctx, logger, err.Error(), "method", method)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return &AuthContext{Subject: claims.Subject, SessionID: claims.SessionID}, nil
}
