// ABOUTME: Replay ledger backed by an EntryStore (SQLite or Redis).
// ABOUTME: Begin creates in-flight marks atomically so processes sharing a store agree.

package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2389/realtime-gateway/internal/clock"
	"github.com/2389/realtime-gateway/internal/envelope"
)

// Pruner is implemented by stores that need explicit expiry.
type Pruner interface {
	PruneReplayEntries(ctx context.Context, olderThan time.Time) (int64, error)
}

const (
	// pruneInterval bounds how often PersistentLedger asks a Pruner to prune.
	pruneInterval = time.Minute
	// createAttempts bounds Begin's create-then-read loop.
	createAttempts = 3
)

// PersistentLedger implements Ledger on top of an EntryStore.
type PersistentLedger struct {
	mu        sync.Mutex
	store     EntryStore
	ttl       time.Duration
	clock     clock.Clock
	stats     counters
	lastPrune time.Time
}

// NewPersistentLedger wraps store. A nil clock means the real clock.
func NewPersistentLedger(store EntryStore, ttl time.Duration, c clock.Clock) *PersistentLedger {
	if c == nil {
		c = clock.Real()
	}
	return &PersistentLedger{
		store: store,
		ttl:   ttl,
		clock: c,
	}
}

// Begin checks key and marks it in flight if it is new. The in-flight mark is
// created atomically in the store, so ledgers in different processes sharing
// one store agree on a single winner.
func (l *PersistentLedger) Begin(ctx context.Context, key, fingerprint string) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.maybePrune(ctx, now)

	entry := &Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StateInFlight,
		UpdatedAt:   now,
	}
	for range createAttempts {
		created, err := l.store.CreateReplayEntry(ctx, entry, l.ttl)
		if err != nil {
			return Outcome{}, fmt.Errorf("creating replay entry: %w", err)
		}
		if created {
			l.stats.misses.Add(1)
			return Outcome{Decision: DecisionNew}, nil
		}

		existing, err := l.store.GetReplayEntry(ctx, key)
		switch {
		case errors.Is(err, ErrEntryNotFound):
			// Abandoned between the create and the read.
			continue
		case err != nil:
			return Outcome{}, fmt.Errorf("loading replay entry: %w", err)
		case now.Sub(existing.UpdatedAt) < l.ttl:
			return l.stats.decide(existing, fingerprint)
		}

		// The store expires entries on its own clock, which can lag ours.
		if err := l.store.PutReplayEntry(ctx, entry, l.ttl); err != nil {
			return Outcome{}, fmt.Errorf("storing replay entry: %w", err)
		}
		l.stats.misses.Add(1)
		return Outcome{Decision: DecisionNew}, nil
	}
	return Outcome{}, fmt.Errorf("replay key %q changed during begin", key)
}

// Complete stores the response for key. Unknown keys are ignored.
func (l *PersistentLedger) Complete(ctx context.Context, key string, resp *envelope.Envelope) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.store.GetReplayEntry(ctx, key)
	if errors.Is(err, ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading replay entry: %w", err)
	}
	entry.State = StateCompleted
	entry.Response = data
	entry.UpdatedAt = l.clock.Now()
	if err := l.store.PutReplayEntry(ctx, entry, l.ttl); err != nil {
		return fmt.Errorf("storing replay entry: %w", err)
	}
	return nil
}

// Abandon forgets key so the request can be retried.
func (l *PersistentLedger) Abandon(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.DeleteReplayEntry(ctx, key); err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("deleting replay entry: %w", err)
	}
	return nil
}

// Stats returns cumulative counters. Entries is -1: stores are not counted.
func (l *PersistentLedger) Stats() Stats {
	return l.stats.snapshot(-1)
}

// Close is a no-op; the store is owned by the caller.
func (l *PersistentLedger) Close() error {
	return nil
}

// maybePrune asks the store to drop expired entries at most once per
// pruneInterval. Must be called with mu held.
func (l *PersistentLedger) maybePrune(ctx context.Context, now time.Time) {
	pruner, ok := l.store.(Pruner)
	if !ok || now.Sub(l.lastPrune) < pruneInterval {
		return
	}
	l.lastPrune = now
	if n, err := pruner.PruneReplayEntries(ctx, now.Add(-l.ttl)); err == nil {
		l.stats.evictions.Add(n)
	}
}
