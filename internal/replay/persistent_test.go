// ABOUTME: Tests for the EntryStore-backed replay ledger using a map store.
// ABOUTME: Verifies decisions, TTL handling, pruning, and store error propagation.

package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/realtime-gateway/internal/clock"
	"github.com/2389/realtime-gateway/internal/envelope"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttls    map[string]time.Duration
	pruned  int
	fail    error
	// beforeCreate runs ahead of every create, outside the lock.
	beforeCreate func()
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]Entry), ttls: make(map[string]time.Duration)}
}

func (s *mapStore) GetReplayEntry(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (s *mapStore) PutReplayEntry(_ context.Context, e *Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Key] = *e
	s.ttls[e.Key] = ttl
	return nil
}

func (s *mapStore) CreateReplayEntry(_ context.Context, e *Entry, ttl time.Duration) (bool, error) {
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	if cur, ok := s.entries[e.Key]; ok && cur.UpdatedAt.Add(s.ttls[e.Key]).After(e.UpdatedAt) {
		return false, nil
	}
	s.entries[e.Key] = *e
	s.ttls[e.Key] = ttl
	return true, nil
}

func (s *mapStore) DeleteReplayEntry(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *mapStore) PruneReplayEntries(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned++
	var n int64
	for k, e := range s.entries {
		if e.UpdatedAt.Before(olderThan) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func TestPersistentLedger_Decisions(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	l := NewPersistentLedger(store, time.Minute, clock.NewFake(epoch))

	out, err := l.Begin(ctx, "k", "fp")
	require.NoError(t, err)
	assert.Equal(t, DecisionNew, out.Decision)

	out, _ = l.Begin(ctx, "k", "fp")
	assert.Equal(t, DecisionInFlight, out.Decision)

	resp := envelope.New(envelope.TypeOrchestratorResponse, "orchestrator", "s1", map[string]any{"route": "live-agent"})
	require.NoError(t, l.Complete(ctx, "k", resp))

	out, _ = l.Begin(ctx, "k", "fp")
	assert.Equal(t, DecisionReplay, out.Decision)
	assert.Equal(t, "live-agent", out.Response.Route())

	out, _ = l.Begin(ctx, "k", "other")
	assert.Equal(t, DecisionConflict, out.Decision)

	require.NoError(t, l.Abandon(ctx, "k"))
	out, _ = l.Begin(ctx, "k", "other")
	assert.Equal(t, DecisionNew, out.Decision)
}

func TestPersistentLedger_ExpiredEntryIsNew(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	store := newMapStore()
	l := NewPersistentLedger(store, 30*time.Second, fake)

	_, _ = l.Begin(ctx, "k", "fp")
	fake.Advance(2 * time.Minute)

	out, err := l.Begin(ctx, "k", "changed")
	require.NoError(t, err)
	assert.Equal(t, DecisionNew, out.Decision)
	assert.GreaterOrEqual(t, store.pruned, 1)
}

func TestPersistentLedger_StoreError(t *testing.T) {
	store := newMapStore()
	store.fail = errors.New("disk on fire")
	l := NewPersistentLedger(store, time.Minute, nil)

	_, err := l.Begin(context.Background(), "k", "fp")
	assert.ErrorContains(t, err, "disk on fire")
}

func TestPersistentLedger_CompleteUnknownKeyIsNoop(t *testing.T) {
	l := NewPersistentLedger(newMapStore(), time.Minute, nil)
	resp := envelope.New(envelope.TypeOrchestratorResponse, "orchestrator", "s1", nil)
	assert.NoError(t, l.Complete(context.Background(), "missing", resp))
}

func TestPersistentLedger_ConcurrentLedgersShareOneWinner(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	fake := clock.NewFake(epoch)
	first := NewPersistentLedger(store, time.Minute, fake)
	second := NewPersistentLedger(store, time.Minute, fake)

	// Both ledgers pass their own lock before either creates the entry.
	var arrived sync.WaitGroup
	arrived.Add(2)
	store.beforeCreate = func() {
		arrived.Done()
		arrived.Wait()
	}

	results := make(chan Decision, 2)
	var wg sync.WaitGroup
	for _, l := range []*PersistentLedger{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.Begin(ctx, "k", "fp")
			assert.NoError(t, err)
			results <- out.Decision
		}()
	}
	wg.Wait()
	close(results)

	var got []Decision
	for d := range results {
		got = append(got, d)
	}
	assert.ElementsMatch(t, []Decision{DecisionNew, DecisionInFlight}, got)
	assert.Equal(t, int64(1), first.Stats().Misses+second.Stats().Misses)
}

// abandoningStore deletes the key on the first read, as another process
// abandoning it between a lost create and the follow-up read would.
type abandoningStore struct {
	*mapStore
	once sync.Once
}

func (s *abandoningStore) GetReplayEntry(ctx context.Context, key string) (*Entry, error) {
	s.once.Do(func() { _ = s.mapStore.DeleteReplayEntry(ctx, key) })
	return s.mapStore.GetReplayEntry(ctx, key)
}

// laggingStore refuses to create over any stored key, like a store whose
// expiry clock runs behind the ledger's.
type laggingStore struct {
	*mapStore
}

func (s *laggingStore) CreateReplayEntry(ctx context.Context, e *Entry, ttl time.Duration) (bool, error) {
	if _, err := s.mapStore.GetReplayEntry(ctx, e.Key); err == nil {
		return false, nil
	}
	return s.mapStore.CreateReplayEntry(ctx, e, ttl)
}

func TestPersistentLedger_AbandonedDuringBeginRetriesCreate(t *testing.T) {
	ctx := context.Background()
	store := &abandoningStore{mapStore: newMapStore()}
	require.NoError(t, store.PutReplayEntry(ctx, &Entry{Key: "k", Fingerprint: "fp", State: StateInFlight, UpdatedAt: epoch}, time.Minute))
	l := NewPersistentLedger(store, time.Minute, clock.NewFake(epoch))

	out, err := l.Begin(ctx, "k", "fp")
	require.NoError(t, err)
	assert.Equal(t, DecisionNew, out.Decision)

	out, err = l.Begin(ctx, "k", "fp")
	require.NoError(t, err)
	assert.Equal(t, DecisionInFlight, out.Decision)
}

func TestPersistentLedger_StaleEntryInLaggingStoreIsNew(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	store := &laggingStore{mapStore: newMapStore()}
	l := NewPersistentLedger(store, 10*time.Second, fake)

	out, err := l.Begin(ctx, "k", "fp")
	require.NoError(t, err)
	require.Equal(t, DecisionNew, out.Decision)

	fake.Advance(30 * time.Second)
	out, err = l.Begin(ctx, "k", "changed")
	require.NoError(t, err)
	assert.Equal(t, DecisionNew, out.Decision)

	got, err := store.GetReplayEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Fingerprint)
	assert.True(t, fake.Now().Equal(got.UpdatedAt))
}
