// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/replay"
)

// MockStore is an in-memory DispatchStore and replay.EntryStore.
type MockStore struct {
	mu         sync.RWMutex
	dispatches []Dispatch
	entries    map[string]mockEntry
}

type mockEntry struct {
	entry     replay.Entry
	expiresAt time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string]mockEntry),
	}
}

// AppendDispatch stores a copy of d.
func (m *MockStore) AppendDispatch(_ context.Context, d *Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.dispatches = append(m.dispatches, *d)
	return nil
}

// ListDispatches returns matching dispatches, newest first.
func (m *MockStore) ListDispatches(_ context.Context, f DispatchFilter) ([]Dispatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Dispatch
	for i := len(m.dispatches) - 1; i >= 0; i-- {
		d := m.dispatches[i]
		if f.TaskID != "" && d.TaskID != f.TaskID {
			continue
		}
		if f.SessionID != "" && d.SessionID != f.SessionID {
			continue
		}
		if f.Since != nil && d.CreatedAt.Before(*f.Since) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := normalizeDispatchLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetReplayEntry loads an entry, expired or not.
func (m *MockStore) GetReplayEntry(_ context.Context, key string) (*replay.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, replay.ErrEntryNotFound
	}
	out := e.entry
	return &out, nil
}

// PutReplayEntry stores an entry with the given TTL.
func (m *MockStore) PutReplayEntry(_ context.Context, e *replay.Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[e.Key] = mockEntry{entry: *e, expiresAt: e.UpdatedAt.Add(ttl)}
	return nil
}

// CreateReplayEntry stores e unless a live entry holds the key.
func (m *MockStore) CreateReplayEntry(_ context.Context, e *replay.Entry, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.entries[e.Key]; ok && cur.expiresAt.After(e.UpdatedAt) {
		return false, nil
	}
	m.entries[e.Key] = mockEntry{entry: *e, expiresAt: e.UpdatedAt.Add(ttl)}
	return true, nil
}

// DeleteReplayEntry removes an entry.
func (m *MockStore) DeleteReplayEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
