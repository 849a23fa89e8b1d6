// ABOUTME: Store interfaces and data types for gateway persistence
// ABOUTME: Defines dispatch log records and the DispatchStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DispatchStatus is the outcome of one orchestrator dispatch.
type DispatchStatus string

const (
	DispatchAccepted  DispatchStatus = "accepted"
	DispatchCompleted DispatchStatus = "completed"
	DispatchFailed    DispatchStatus = "failed"
	DispatchReplayed  DispatchStatus = "replayed"
)

// Dispatch records one request forwarded (or replayed) for a task.
type Dispatch struct {
	ID         string
	TaskID     string
	SessionID  string
	ReplayKey  string
	Route      string
	Status     DispatchStatus
	Attempts   int
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}

// DispatchFilter narrows ListDispatches. Limit defaults to 100, max 1000.
type DispatchFilter struct {
	TaskID    string
	SessionID string
	Since     *time.Time
	Limit     int
}

// DispatchStore persists dispatch outcomes.
type DispatchStore interface {
	AppendDispatch(ctx context.Context, d *Dispatch) error
	ListDispatches(ctx context.Context, f DispatchFilter) ([]Dispatch, error)
	Close() error
}
