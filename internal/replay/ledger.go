// ABOUTME: Ledger interface and shared types for replay deduplication.
// ABOUTME: Defines decisions, stored entries, and the EntryStore persistence seam.

package replay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// ErrEntryNotFound is returned by an EntryStore when a key is unknown.
var ErrEntryNotFound = errors.New("replay entry not found")

// Decision is the ledger's verdict for an inbound replay key.
type Decision int

const (
	// DecisionNew means the key was unseen and is now marked in flight.
	DecisionNew Decision = iota
	// DecisionInFlight means an identical request is still being processed.
	DecisionInFlight
	// DecisionReplay means an identical request completed; Response holds its result.
	DecisionReplay
	// DecisionConflict means the key was used with different content.
	DecisionConflict
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionInFlight:
		return "in_flight"
	case DecisionReplay:
		return "replay"
	case DecisionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Outcome is returned by Ledger.Begin.
type Outcome struct {
	Decision Decision
	Response *envelope.Envelope
}

// Stats are cumulative ledger counters plus the current entry count
// (-1 when the backend cannot count cheaply).
type Stats struct {
	Entries   int64
	Hits      int64
	Misses    int64
	Conflicts int64
	Evictions int64
}

// Ledger records processed replay keys.
type Ledger interface {
	Begin(ctx context.Context, key, fingerprint string) (Outcome, error)
	Complete(ctx context.Context, key string, resp *envelope.Envelope) error
	Abandon(ctx context.Context, key string) error
	Stats() Stats
	Close() error
}

// EntryState is the processing state of a stored key.
type EntryState string

const (
	StateInFlight  EntryState = "in_flight"
	StateCompleted EntryState = "completed"
)

// Entry is the persisted form of a ledger record.
type Entry struct {
	Key         string     `json:"key"`
	Fingerprint string     `json:"fingerprint"`
	State       EntryState `json:"state"`
	Response    []byte     `json:"response,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntryStore persists ledger entries. Implementations must return
// ErrEntryNotFound for unknown keys. An entry expires ttl after its UpdatedAt.
type EntryStore interface {
	GetReplayEntry(ctx context.Context, key string) (*Entry, error)
	PutReplayEntry(ctx context.Context, entry *Entry, ttl time.Duration) error
	// CreateReplayEntry stores entry only if its key is absent or expired as
	// of entry.UpdatedAt, atomically with respect to other writers. It
	// reports whether the entry was stored.
	CreateReplayEntry(ctx context.Context, entry *Entry, ttl time.Duration) (bool, error)
	DeleteReplayEntry(ctx context.Context, key string) error
}

// counters are shared by all ledger implementations.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	conflicts atomic.Int64
	evictions atomic.Int64
}

func (c *counters) snapshot(entries int64) Stats {
	return Stats{
		Entries:   entries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Conflicts: c.conflicts.Load(),
		Evictions: c.evictions.Load(),
	}
}

// decide maps an existing entry onto a decision. existing must be live.
func (c *counters) decide(existing *Entry, fingerprint string) (Outcome, error) {
	if existing.Fingerprint != fingerprint {
		c.conflicts.Add(1)
		return Outcome{Decision: DecisionConflict}, nil
	}
	c.hits.Add(1)
	if existing.State != StateCompleted || len(existing.Response) == 0 {
		return Outcome{Decision: DecisionInFlight}, nil
	}
	resp, err := envelope.Unmarshal(existing.Response)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Decision: DecisionReplay, Response: resp}, nil
}
