// ABOUTME: Task record, status values, and parameter types for the registry.
// ABOUTME: Records are returned by value so callers never share registry state.

package task

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPendingApproval, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Record is a snapshot of one task.
type Record struct {
	TaskID      string    `json:"taskId"`
	SessionID   string    `json:"sessionId"`
	RunID       *string   `json:"runId"`
	Intent      *string   `json:"intent"`
	Route       *string   `json:"route"`
	Status      Status    `json:"status"`
	ProgressPct int       `json:"progressPct"`
	Stage       string    `json:"stage"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Error       *string   `json:"error"`
}

func (r *Record) clone() Record {
	out := *r
	out.RunID = copyString(r.RunID)
	out.Intent = copyString(r.Intent)
	out.Route = copyString(r.Route)
	out.Error = copyString(r.Error)
	return out
}

// StartParams describes a task being started or re-announced.
// Empty strings mean "not supplied".
type StartParams struct {
	TaskID    string
	SessionID string
	RunID     string
	Intent    string
	Route     string
	Stage     string
}

// UpdateParams lists the fields to merge into an existing task.
// Nil or empty fields are left unchanged.
type UpdateParams struct {
	Status      Status
	ProgressPct *int
	Stage       string
	Route       string
	Error       *string
}

// ListParams filters ListActive. A zero Limit means DefaultListLimit.
type ListParams struct {
	SessionID string
	Limit     int
}

// Stats counts registry records by status.
type Stats struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	ByStatus map[Status]int `json:"byStatus"`
}

// Int returns a pointer to v, for UpdateParams.ProgressPct.
func Int(v int) *int {
	return &v
}

// String returns a pointer to v, for UpdateParams.Error.
func String(v string) *string {
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
