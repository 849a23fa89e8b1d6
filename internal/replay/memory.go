// ABOUTME: Thread-safe in-process replay ledger with TTL and size-bounded eviction.
// ABOUTME: Uses a doubly-linked list for O(1) oldest-first eviction.

package replay

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/2389/realtime-gateway/internal/clock"
	"github.com/2389/realtime-gateway/internal/envelope"
)

type memoryEntry struct {
	Entry
	element *list.Element
}

// MemoryLedger keeps replay entries in memory. A background goroutine
// periodically removes expired entries; expiry is also checked lazily.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List // keys, least recently touched at front
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
	stats   counters
	done    chan struct{}
	closed  bool
}

// MemoryOption configures a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithClock overrides the clock used for timestamps and expiry.
func WithClock(c clock.Clock) MemoryOption {
	return func(l *MemoryLedger) {
		l.clock = c
	}
}

// NewMemoryLedger creates an in-memory ledger with the given TTL and maximum size.
func NewMemoryLedger(ttl time.Duration, maxSize int, opts ...MemoryOption) *MemoryLedger {
	if maxSize < 1 {
		maxSize = 1
	}
	l := &MemoryLedger{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clock.Real(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.cleanup()
	return l
}

// Begin checks key and marks it in flight if it is new.
func (l *MemoryLedger) Begin(_ context.Context, key, fingerprint string) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if entry, ok := l.entries[key]; ok {
		if !l.expired(entry, now) {
			return l.stats.decide(&entry.Entry, fingerprint)
		}
		l.removeLocked(entry)
	}

	l.stats.misses.Add(1)
	l.insertLocked(&Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StateInFlight,
		UpdatedAt:   now,
	})
	return Outcome{Decision: DecisionNew}, nil
}

// Complete stores the response for an in-flight key. Unknown keys are ignored.
func (l *MemoryLedger) Complete(_ context.Context, key string, resp *envelope.Envelope) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return nil
	}
	entry.State = StateCompleted
	entry.Response = data
	entry.UpdatedAt = l.clock.Now()
	l.order.MoveToBack(entry.element)
	return nil
}

// Abandon forgets key so the request can be retried.
func (l *MemoryLedger) Abandon(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[key]; ok {
		l.removeLocked(entry)
	}
	return nil
}

// Stats returns counters and the current entry count.
func (l *MemoryLedger) Stats() Stats {
	l.mu.Lock()
	n := int64(len(l.entries))
	l.mu.Unlock()
	return l.stats.snapshot(n)
}

func (l *MemoryLedger) expired(entry *memoryEntry, now time.Time) bool {
	return now.Sub(entry.UpdatedAt) >= l.ttl
}

// insertLocked adds an entry, evicting the oldest when at capacity.
// Must be called with mu held.
func (l *MemoryLedger) insertLocked(e *Entry) {
	if len(l.entries) >= l.maxSize {
		if front := l.order.Front(); front != nil {
			key, _ := front.Value.(string)
			if victim, ok := l.entries[key]; ok {
				l.removeLocked(victim)
				l.stats.evictions.Add(1)
			}
		}
	}
	elem := l.order.PushBack(e.Key)
	l.entries[e.Key] = &memoryEntry{Entry: *e, element: elem}
}

// removeLocked deletes an entry. Must be called with mu held.
func (l *MemoryLedger) removeLocked(entry *memoryEntry) {
	l.order.Remove(entry.element)
	delete(l.entries, entry.Key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (l *MemoryLedger) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

// runCleanup removes all expired entries.
func (l *MemoryLedger) runCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for _, entry := range l.entries {
		if l.expired(entry, now) {
			l.removeLocked(entry)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
	return nil
}
