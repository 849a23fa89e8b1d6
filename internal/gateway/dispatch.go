// ABOUTME: Submission pipeline shared by the HTTP and WebSocket entry points
// ABOUTME: Replay check, task tracking, orchestrator dispatch, and dispatch logging

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/realtime-gateway/internal/auth"
	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/replay"
	"github.com/2389/realtime-gateway/internal/store"
	"github.com/2389/realtime-gateway/internal/task"
)

// Task stages set by the gateway.
const (
	stageDispatching    = "dispatching"
	stageAccepted       = "accepted"
	stageDispatchFailed = "dispatch_failed"
)

// Request outcomes counted by the exporter, besides error codes.
const (
	outcomeDispatched = "dispatched"
	outcomeReplayed   = "replayed"
	outcomeCollapsed  = "collapsed"
)

// submission is the result of processing one inbound envelope.
type submission struct {
	Response *envelope.Envelope
	TaskID   string
	Replayed bool
}

// submit runs env through access checks, rate limiting, replay detection,
// and dispatch. Concurrent submissions with the same key and fingerprint share
// one execution.
func (g *Gateway) submit(ctx context.Context, env *envelope.Envelope) (*submission, *apiError) {
	if !auth.FromContext(ctx).CanAccessSession(env.SessionID) {
		g.exporter.Request(CodeUnauthorized)
		return nil, newAPIError(http.StatusForbidden, CodeUnauthorized, "token does not grant access to this session")
	}
	if id := env.TaskID(); id != "" {
		// A task id cannot move a task into another session.
		if rec, ok := g.tasks.Get(id); ok && rec.SessionID != env.SessionID {
			g.exporter.Request(CodeTaskNotFound)
			return nil, newAPIError(http.StatusNotFound, CodeTaskNotFound, fmt.Sprintf("task %q not found", id))
		}
	}
	if !g.limiter.Allow(env.SessionID, time.Now()) {
		g.exporter.Request(CodeRateLimited)
		return nil, newAPIError(http.StatusTooManyRequests, CodeRateLimited, "too many requests for this session")
	}

	key := replay.BuildReplayKey(env)
	fingerprint := replay.BuildFingerprint(env)

	// The dispatch outlives a disconnecting caller so a retry can replay it.
	detached := context.WithoutCancel(ctx)
	v, err, shared := g.inflight.Do(key+"|"+fingerprint, func() (any, error) {
		return g.process(detached, env, key, fingerprint)
	})
	if err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) {
			apiErr = newAPIError(http.StatusInternalServerError, CodeInternal, err.Error())
		}
		g.exporter.Request(apiErr.Code)
		return nil, apiErr
	}

	sub := v.(*submission)
	switch {
	case shared:
		g.exporter.Request(outcomeCollapsed)
	case sub.Replayed:
		g.exporter.Request(outcomeReplayed)
	default:
		g.exporter.Request(outcomeDispatched)
	}
	return sub, nil
}

// process consults the ledger and dispatches new requests.
func (g *Gateway) process(ctx context.Context, env *envelope.Envelope, key, fingerprint string) (*submission, error) {
	logger := g.logger.With("session_id", env.SessionID, "request_id", env.ID, "replay_key", key)

	outcome, err := g.ledger.Begin(ctx, key, fingerprint)
	if err != nil {
		logger.Error("replay ledger lookup failed", "error", err)
		return nil, newAPIError(http.StatusServiceUnavailable, CodeInternal, "replay ledger unavailable")
	}

	switch outcome.Decision {
	case replay.DecisionReplay:
		logger.Debug("replaying stored response")
		resp := outcome.Response
		g.recordDispatch(ctx, &store.Dispatch{
			TaskID:    resp.TaskID(),
			SessionID: env.SessionID,
			ReplayKey: key,
			Route:     resp.Route(),
			Status:    store.DispatchReplayed,
		})
		return &submission{Response: resp, TaskID: resp.TaskID(), Replayed: true}, nil
	case replay.DecisionInFlight:
		return nil, newAPIError(http.StatusConflict, CodeRequestInFlight, "a request with this idempotency key is still processing")
	case replay.DecisionConflict:
		logger.Warn("idempotency key reused with different content")
		return nil, newAPIError(http.StatusConflict, CodeIdempotencyConflict, "idempotency key was already used for a different request")
	}

	return g.dispatch(ctx, logger, env, key)
}

// dispatch starts a task for env, forwards it to the orchestrator, and
// records the outcome.
func (g *Gateway) dispatch(ctx context.Context, logger *slog.Logger, env *envelope.Envelope, key string) (*submission, error) {
	rec := g.tasks.Start(task.StartParams{
		TaskID:    env.TaskID(),
		SessionID: env.SessionID,
		RunID:     env.RunIDString(),
		Intent:    env.Intent(),
		Stage:     stageDispatching,
	})
	g.tasks.Update(rec.TaskID, task.UpdateParams{Status: task.StatusRunning})

	out, err := outboundEnvelope(env, rec.TaskID)
	if err != nil {
		if abandonErr := g.ledger.Abandon(ctx, key); abandonErr != nil {
			logger.Error("abandoning replay key failed", "error", abandonErr)
		}
		g.tasks.Update(rec.TaskID, task.UpdateParams{Status: task.StatusFailed, Error: task.String(err.Error())})
		return nil, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, err.Error())
	}

	start := time.Now()
	res, err := g.client.Do(ctx, g.config.Orchestrator.URL, out)
	elapsed := time.Since(start)
	if err != nil {
		apiErr := classifyDispatchError(err)
		logger.Warn("orchestrator dispatch failed", "task_id", rec.TaskID, "code", apiErr.Code, "error", err)

		if abandonErr := g.ledger.Abandon(ctx, key); abandonErr != nil {
			logger.Error("abandoning replay key failed", "error", abandonErr)
		}
		g.tasks.Update(rec.TaskID, task.UpdateParams{
			Status: task.StatusFailed,
			Stage:  stageDispatchFailed,
			Error:  task.String(apiErr.Message),
		})
		g.recordDispatch(ctx, &store.Dispatch{
			TaskID:     rec.TaskID,
			SessionID:  env.SessionID,
			ReplayKey:  key,
			Status:     store.DispatchFailed,
			Attempts:   res.Attempts,
			Error:      apiErr.Message,
			DurationMs: elapsed.Milliseconds(),
		})
		return nil, apiErr
	}

	resp := res.Envelope
	stampTaskID(resp, rec.TaskID)
	status := g.applyResponse(rec.TaskID, resp)

	if err := g.ledger.Complete(ctx, key, resp); err != nil {
		logger.Error("storing replay response failed", "error", err)
	}
	g.recordDispatch(ctx, &store.Dispatch{
		TaskID:     rec.TaskID,
		SessionID:  env.SessionID,
		ReplayKey:  key,
		Route:      resp.Route(),
		Status:     status,
		Attempts:   res.Attempts,
		DurationMs: elapsed.Milliseconds(),
	})
	logger.Info("request dispatched", "task_id", rec.TaskID, "route", resp.Route(), "status", status, "duration_ms", elapsed.Milliseconds())

	return &submission{Response: resp, TaskID: rec.TaskID}, nil
}

// applyResponse moves the task to the state reported by the orchestrator and
// returns the matching dispatch status.
func (g *Gateway) applyResponse(taskID string, resp *envelope.Envelope) store.DispatchStatus {
	route := resp.Route()
	switch status := resp.Status(); status {
	case envelope.StatusCompleted:
		g.tasks.Update(taskID, task.UpdateParams{Status: task.StatusCompleted, Route: route, Stage: status})
		return store.DispatchCompleted
	case envelope.StatusFailed:
		g.tasks.Update(taskID, task.UpdateParams{
			Status: task.StatusFailed,
			Route:  route,
			Stage:  status,
			Error:  task.String(responseErrorMessage(resp)),
		})
		return store.DispatchFailed
	default:
		next := task.Status(status)
		if !next.Valid() || next.Terminal() {
			next = task.StatusRunning
		}
		g.tasks.Update(taskID, task.UpdateParams{Status: next, Route: route, Stage: stageAccepted})
		return store.DispatchAccepted
	}
}

// outboundEnvelope copies env with payload.taskId set.
func outboundEnvelope(env *envelope.Envelope, taskID string) (*envelope.Envelope, error) {
	out, err := env.Clone()
	if err != nil {
		return nil, err
	}
	out.Type = envelope.TypeOrchestratorRequest
	stampTaskID(out, taskID)
	return out, nil
}

// stampTaskID sets payload.taskId, creating an object payload if needed.
func stampTaskID(env *envelope.Envelope, taskID string) {
	payload := env.PayloadMap()
	if payload == nil {
		payload = map[string]any{}
		if env.Payload != nil {
			payload["value"] = env.Payload
		}
		env.Payload = payload
	}
	payload["taskId"] = taskID
}

// responseErrorMessage extracts payload.error.message from a failed response.
func responseErrorMessage(resp *envelope.Envelope) string {
	if p := resp.PayloadMap(); p != nil {
		if errObj, ok := p["error"].(map[string]any); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return "orchestrator reported failure"
}

// recordDispatch appends d to the store, logging failures.
func (g *Gateway) recordDispatch(ctx context.Context, d *store.Dispatch) {
	if err := g.store.AppendDispatch(ctx, d); err != nil {
		g.logger.Error("recording dispatch failed", "task_id", d.TaskID, "error", err)
	}
}
