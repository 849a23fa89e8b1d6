// ABOUTME: HTTP API handlers for submissions, task lookups, dispatch history, and media jobs
// ABOUTME: All responses are JSON; failures are error envelopes with stable codes

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/realtime-gateway/internal/auth"
	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/mediajob"
	"github.com/2389/realtime-gateway/internal/store"
	"github.com/2389/realtime-gateway/internal/task"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Response headers set on submissions.
const (
	headerTaskID   = "X-Task-Id"
	headerReplayed = "X-Replayed"
)

// ListTasksResponse is the JSON response for GET /api/tasks.
type ListTasksResponse struct {
	Tasks []task.Record `json:"tasks"`
}

// DispatchResponse is one entry of GET /api/tasks/{id}/dispatches.
type DispatchResponse struct {
	ID         string `json:"id"`
	TaskID     string `json:"taskId"`
	SessionID  string `json:"sessionId"`
	ReplayKey  string `json:"replayKey"`
	Route      string `json:"route,omitempty"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

// ListDispatchesResponse is the JSON response for GET /api/tasks/{id}/dispatches.
type ListDispatchesResponse struct {
	Dispatches []DispatchResponse `json:"dispatches"`
}

// MediaJobsResponse is the JSON response for the media job endpoints.
type MediaJobsResponse struct {
	Jobs []mediajob.Job `json:"jobs"`
}

// handleSubmit handles POST /api/requests.
func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	env, err := envelope.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		g.exporter.Request(CodeInvalidEnvelope)
		writeError(w, "", newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, err.Error()))
		return
	}

	sub, apiErr := g.submit(r.Context(), env)
	if apiErr != nil {
		writeError(w, env.SessionID, apiErr)
		return
	}

	w.Header().Set(headerTaskID, sub.TaskID)
	w.Header().Set(headerReplayed, strconv.FormatBool(sub.Replayed))
	writeJSON(w, http.StatusOK, sub.Response)
}

// handleListTasks handles GET /api/tasks?session_id=&limit=.
func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if !g.canAccess(r, sessionID) {
		writeError(w, sessionID, newAPIError(http.StatusForbidden, CodeUnauthorized, "token does not grant access to this session"))
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, sessionID, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, err.Error()))
		return
	}

	tasks := g.tasks.ListActive(task.ListParams{SessionID: sessionID, Limit: limit})
	if tasks == nil {
		tasks = []task.Record{}
	}
	writeJSON(w, http.StatusOK, ListTasksResponse{Tasks: tasks})
}

// handleGetTask handles GET /api/tasks/{id}.
func (g *Gateway) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := g.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListDispatches handles GET /api/tasks/{id}/dispatches.
func (g *Gateway) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sessionID := ""
	// Dispatch history outlives the in-memory task.
	if rec, ok := g.tasks.Get(taskID); ok {
		sessionID = rec.SessionID
		if !g.canAccess(r, sessionID) {
			writeError(w, sessionID, newAPIError(http.StatusNotFound, CodeTaskNotFound, "task not found"))
			return
		}
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, sessionID, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, err.Error()))
		return
	}

	filter := store.DispatchFilter{TaskID: taskID, Limit: limit}
	if a := auth.FromContext(r.Context()); sessionID == "" && a != nil {
		// Restrict to the token's own session when the task is gone.
		filter.SessionID = a.SessionID
	}

	dispatches, err := g.store.ListDispatches(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing dispatches failed", "task_id", taskID, "error", err)
		writeError(w, sessionID, newAPIError(http.StatusInternalServerError, CodeInternal, "failed to list dispatches"))
		return
	}

	resp := ListDispatchesResponse{Dispatches: make([]DispatchResponse, 0, len(dispatches))}
	for _, d := range dispatches {
		resp.Dispatches = append(resp.Dispatches, DispatchResponse{
			ID:         d.ID,
			TaskID:     d.TaskID,
			SessionID:  d.SessionID,
			ReplayKey:  d.ReplayKey,
			Route:      d.Route,
			Status:     string(d.Status),
			Attempts:   d.Attempts,
			Error:      d.Error,
			DurationMs: d.DurationMs,
			CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateMediaJob handles POST /api/media/jobs.
func (g *Gateway) handleCreateMediaJob(w http.ResponseWriter, r *http.Request) {
	var params mediajob.CreateParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&params); err != nil {
		writeError(w, "", newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if params.SessionID == "" {
		writeError(w, "", newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, "sessionId is required"))
		return
	}
	switch params.Mode {
	case "", mediajob.ModeFallback, mediajob.ModeSimulated:
	default:
		writeError(w, params.SessionID, newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, fmt.Sprintf("unknown mode %q", params.Mode)))
		return
	}
	if !g.canAccess(r, params.SessionID) {
		writeError(w, params.SessionID, newAPIError(http.StatusForbidden, CodeUnauthorized, "token does not grant access to this session"))
		return
	}

	job := g.media.CreateVideoJob(params)
	writeJSON(w, http.StatusCreated, job)
}

// handleGetMediaJobs handles GET /api/media/jobs?ids=a,b.
func (g *Gateway) handleGetMediaJobs(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, "", newAPIError(http.StatusBadRequest, CodeInvalidEnvelope, "ids query parameter is required"))
		return
	}

	jobs := make([]mediajob.Job, 0, len(ids))
	for _, job := range g.media.GetByIDs(ids) {
		if g.canAccess(r, job.SessionID) {
			jobs = append(jobs, job)
		}
	}
	writeJSON(w, http.StatusOK, MediaJobsResponse{Jobs: jobs})
}

// lookupTask loads the {id} task, writing TASK_NOT_FOUND when it is missing
// or belongs to a session the caller cannot see.
func (g *Gateway) lookupTask(w http.ResponseWriter, r *http.Request) (task.Record, bool) {
	taskID := r.PathValue("id")
	rec, ok := g.tasks.Get(taskID)
	if !ok || !g.canAccess(r, rec.SessionID) {
		writeError(w, "", newAPIError(http.StatusNotFound, CodeTaskNotFound, fmt.Sprintf("task %q not found", taskID)))
		return task.Record{}, false
	}
	return rec, true
}

// canAccess reports whether the request's token may see sessionID.
func (g *Gateway) canAccess(r *http.Request, sessionID string) bool {
	return auth.FromContext(r.Context()).CanAccessSession(sessionID)
}

// parseLimit parses an optional positive limit; empty means 0 (default).
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}
