// ABOUTME: gRPC server construction with keepalive, auth interceptor, and health service
// ABOUTME: Health is public so probes work without a token

package gateway

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/realtime-gateway/internal/auth"
)

// Public gRPC methods that bypass the auth interceptor.
var publicGRPCMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
}

// createGRPCServer creates a gRPC server with the health service registered.
// When verifier is nil the auth interceptor is omitted.
func createGRPCServer(verifier *auth.JWTVerifier, logger *slog.Logger) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if verifier != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(
			auth.UnaryInterceptor(verifier, logger.With("component", "grpc-auth"), publicGRPCMethods...),
		))
		logger.Info("auth enabled (JWT)")
	} else {
		logger.Warn("auth disabled - no jwt_secret configured")
	}

	server := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)

	return server, healthServer
}

// healthServiceName is the service name reported by the gRPC health server.
const healthServiceName = "realtime.gateway"
