// Package gateway orchestrates the realtime-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the realtime-gateway
// server. It owns the task registry, media job queue, replay ledger,
// orchestrator client, dispatch store, session event broadcaster, and the
// HTTP and gRPC servers that expose them.
//
// # Request Flow
//
// An inbound envelope (HTTP or WebSocket) goes through:
//
//  1. Session access check against the caller's token
//  2. Per-session rate limiting
//  3. Replay key and fingerprint derivation; concurrent identical
//     submissions share one execution via singleflight
//  4. Ledger decision: new, in flight, replay, or conflict
//  5. Task start, orchestrator dispatch, task update from the reply
//  6. Ledger completion and a dispatch record in the store
//
// Failures become error envelopes carrying a stable code:
//
//	INVALID_ENVELOPE, IDEMPOTENCY_CONFLICT, REQUEST_IN_FLIGHT,
//	ORCHESTRATOR_UNAVAILABLE, ORCHESTRATOR_TIMEOUT, ORCHESTRATOR_REJECTED,
//	TASK_NOT_FOUND, RATE_LIMITED, UNAUTHORIZED
//
// # HTTP API
//
//   - POST /api/requests - Submit an envelope
//   - GET /api/tasks - List active tasks (session_id, limit)
//   - GET /api/tasks/{id} - Get one task
//   - GET /api/tasks/{id}/dispatches - Dispatch history for a task
//   - POST /api/media/jobs - Create a video job
//   - GET /api/media/jobs?ids=a,b - Get jobs by id
//   - GET /ws?session_id=X - WebSocket for submissions and task events
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store and orchestrator)
//   - GET /metrics - Prometheus metrics
//
// When auth.jwt_secret is set, /api and /ws require a bearer token (or an
// access_token query parameter for browsers opening a WebSocket).
//
// # gRPC
//
// The gRPC listener serves the standard grpc.health.v1 service so load
// balancers can probe the gateway. Its status flips to NOT_SERVING on shutdown.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is cancelled
package gateway
