// ABOUTME: Stable error codes and JSON error envelope helpers for the gateway API
// ABOUTME: Maps orchestrator failures onto codes and HTTP statuses

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/orchestrator"
)

// Error codes carried in error envelopes.
const (
	CodeInvalidEnvelope         = "INVALID_ENVELOPE"
	CodeIdempotencyConflict     = "IDEMPOTENCY_CONFLICT"
	CodeRequestInFlight         = "REQUEST_IN_FLIGHT"
	CodeOrchestratorUnavailable = "ORCHESTRATOR_UNAVAILABLE"
	CodeOrchestratorTimeout     = "ORCHESTRATOR_TIMEOUT"
	CodeOrchestratorRejected    = "ORCHESTRATOR_REJECTED"
	CodeTaskNotFound            = "TASK_NOT_FOUND"
	CodeRateLimited             = "RATE_LIMITED"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInternal                = "INTERNAL"
)

// apiError is a failure destined for a client.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string) *apiError {
	return &apiError{Status: status, Code: code, Message: message}
}

// classifyDispatchError maps an orchestrator client error onto an apiError.
func classifyDispatchError(err error) *apiError {
	var timeoutErr *orchestrator.TimeoutError
	var httpErr *orchestrator.HTTPError
	switch {
	case errors.As(err, &timeoutErr):
		return newAPIError(http.StatusGatewayTimeout, CodeOrchestratorTimeout, err.Error())
	case errors.As(err, &httpErr) && !httpErr.Retriable:
		return newAPIError(http.StatusBadGateway, CodeOrchestratorRejected, err.Error())
	case errors.Is(err, context.Canceled):
		return newAPIError(499, CodeOrchestratorUnavailable, "request cancelled")
	default:
		return newAPIError(http.StatusBadGateway, CodeOrchestratorUnavailable, err.Error())
	}
}

// errorEnvelope wraps e for sessionID with a fresh trace id.
func errorEnvelope(sessionID string, e *apiError) *envelope.Envelope {
	return envelope.NewError(source, sessionID, e.Code, e.Message, uuid.New().String())
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error envelope for e.
func writeError(w http.ResponseWriter, sessionID string, e *apiError) {
	writeJSON(w, e.Status, errorEnvelope(sessionID, e))
}

// writeAuthError adapts auth middleware failures to error envelopes.
func (g *Gateway) writeAuthError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeError(w, r.URL.Query().Get("session_id"), newAPIError(status, CodeUnauthorized, message))
}
