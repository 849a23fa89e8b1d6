// ABOUTME: WebSocket endpoint for bidirectional envelope exchange per session
// ABOUTME: Inbound frames are submissions; task events for the session are pushed back

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// handleWebSocket handles GET /ws?session_id=X.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, "", newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, "session_id query parameter is required"))
		return
	}
	if !g.canAccess(r, sessionID) {
		writeError(w, sessionID, newAPIError(http.StatusForbidden, CodeUnauthorized, "token does not grant access to this session"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.Server.AllowedOrigins,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	logger := g.logger.With("session_id", sessionID, "component", "ws")
	logger.Debug("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, _ := g.events.Subscribe(ctx, sessionID)
	go func() {
		defer cancel()
		for env := range events {
			if err := wsjson.Write(ctx, conn, env); err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		reply := g.handleFrame(ctx, sessionID, data)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// handleFrame processes one inbound frame and returns the envelope to send back.
func (g *Gateway) handleFrame(ctx context.Context, sessionID string, data []byte) *envelope.Envelope {
	env, err := envelope.DecodeBytes(data)
	if err != nil {
		g.exporter.Request(CodeInvalidEnvelope)
		return errorEnvelope(sessionID, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, err.Error()))
	}
	if env.SessionID != sessionID {
		g.exporter.Request(CodeInvalidEnvelope)
		return errorEnvelope(sessionID, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, "envelope sessionId does not match connection"))
	}

	sub, apiErr := g.submit(ctx, env)
	if apiErr != nil {
		return errorEnvelope(sessionID, apiErr)
	}
	return sub.Response
}
