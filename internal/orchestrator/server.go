// ABOUTME: HTTP handler for the orchestrator service's /orchestrate endpoint.
// ABOUTME: Routes by intent and forwards to agents with the retrying client.

package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// Source is the envelope source used for orchestrator responses.
const Source = "orchestrator"

// Server answers orchestration requests.
type Server struct {
	router *Router
	client *Client
	logger *slog.Logger
}

// NewServer creates a server that forwards through client.
func NewServer(router *Router, client *Client, logger *slog.Logger) *Server {
	return &Server{
		router: router,
		client: client,
		logger: logger,
	}
}

// Handler returns the service's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	req, err := envelope.Decode(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope.NewError(Source, "", "INVALID_ENVELOPE", err.Error(), uuid.New().String()))
		return
	}

	route := s.router.Resolve(req.Intent())
	logger := s.logger.With("request_id", req.ID, "session_id", req.SessionID, "route", route)

	target, ok := s.router.Target(route)
	if !ok {
		logger.Debug("no agent configured for route, accepting")
		writeJSON(w, http.StatusOK, s.response(req, route, envelope.StatusAccepted, nil))
		return
	}

	agentResp, err := s.client.Send(r.Context(), target, req)
	if err != nil {
		logger.Warn("agent dispatch failed", "target", target, "error", err)
		payload := map[string]any{"error": map[string]any{"code": agentErrorCode(err), "message": err.Error()}}
		writeJSON(w, http.StatusOK, s.response(req, route, envelope.StatusFailed, payload))
		return
	}

	status := agentResp.Status()
	if status == "" {
		status = envelope.StatusCompleted
	}
	payload := map[string]any{"output": agentResp.Payload}
	if agentResp.TaskID() != "" {
		payload["taskId"] = agentResp.TaskID()
	}
	logger.Info("agent dispatch finished", "status", status)
	writeJSON(w, http.StatusOK, s.response(req, route, status, payload))
}

func (s *Server) response(req *envelope.Envelope, route, status string, extra map[string]any) *envelope.Envelope {
	payload := map[string]any{
		"status": status,
		"route":  route,
		"intent": req.Intent(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	resp := envelope.New(envelope.TypeOrchestratorResponse, Source, req.SessionID, payload)
	resp.UserID = req.UserID
	resp.RunID = req.RunID
	return resp
}

func agentErrorCode(err error) string {
	var httpErr *HTTPError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		return "AGENT_TIMEOUT"
	case errors.As(err, &httpErr):
		return "AGENT_REJECTED"
	default:
		return "AGENT_UNAVAILABLE"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
