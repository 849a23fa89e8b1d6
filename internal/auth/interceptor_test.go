// ABOUTME: Tests for the gRPC JWT interceptor
// ABOUTME: Calls the interceptor directly with synthetic incoming metadata

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthMethod = "/grpc.health.v1.Health/Check"

func runInterceptor(t *testing.T, ctx context.Context, method string) (*AuthContext, error) {
	t.Helper()
	interceptor := UnaryInterceptor(NewJWTVerifier(testSecret), nil, healthMethod)

	var seen *AuthContext
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req any) (any, error) {
		seen = FromContext(ctx)
		return "ok", nil
	})
	return seen, err
}

func TestUnaryInterceptor_PublicMethod(t *testing.T) {
	_, err := runInterceptor(t, context.Background(), healthMethod)
	assert.NoError(t, err)
}

func TestUnaryInterceptor_ValidToken(t *testing.T) {
	token, err := NewJWTVerifier(testSecret).Generate("user-1", "", time.Hour)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	seen, err := runInterceptor(t, ctx, "/realtime.Gateway/Submit")
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "user-1", seen.Subject)
}

func TestUnaryInterceptor_Rejects(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no metadata", context.Background()},
		{"no authorization", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))},
		{"bad scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic x"))},
		{"bad token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runInterceptor(t, tt.ctx, "/realtime.Gateway/Submit")
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}
