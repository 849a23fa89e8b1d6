// ABOUTME: Tests for dispatch log store operations
// ABOUTME: Runs the same cases against SQLiteStore and MockStore

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchStores(t *testing.T) map[string]DispatchStore {
	return map[string]DispatchStore{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestDispatchStore_Append(t *testing.T) {
	for name, store := range dispatchStores(t) {
		t.Run(name, func(t *testing.T) {
			d := &Dispatch{TaskID: "task-1", SessionID: "s1", ReplayKey: "k", Route: "live-agent", Status: DispatchCompleted, Attempts: 2}
			require.NoError(t, store.AppendDispatch(context.Background(), d))

			assert.NotEmpty(t, d.ID)
			assert.False(t, d.CreatedAt.IsZero())
		})
	}
}

func TestDispatchStore_ListFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range dispatchStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rows := []Dispatch{
				{TaskID: "task-1", SessionID: "s1", Status: DispatchFailed, Error: "boom", CreatedAt: base},
				{TaskID: "task-1", SessionID: "s1", Status: DispatchCompleted, CreatedAt: base.Add(time.Second)},
				{TaskID: "task-2", SessionID: "s2", Status: DispatchAccepted, CreatedAt: base.Add(2 * time.Second)},
				{TaskID: "task-1", SessionID: "s1", Status: DispatchReplayed, CreatedAt: base.Add(3 * time.Second)},
			}
			for i := range rows {
				require.NoError(t, store.AppendDispatch(ctx, &rows[i]))
			}

			all, err := store.ListDispatches(ctx, DispatchFilter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, DispatchReplayed, all[0].Status, "newest first")

			task1, err := store.ListDispatches(ctx, DispatchFilter{TaskID: "task-1"})
			require.NoError(t, err)
			require.Len(t, task1, 3)
			assert.Equal(t, "boom", task1[2].Error)
			assert.True(t, task1[2].CreatedAt.Equal(base))

			s2, err := store.ListDispatches(ctx, DispatchFilter{SessionID: "s2"})
			require.NoError(t, err)
			require.Len(t, s2, 1)
			assert.Equal(t, DispatchAccepted, s2[0].Status)

			since := base.Add(time.Second)
			recent, err := store.ListDispatches(ctx, DispatchFilter{TaskID: "task-1", Since: &since})
			require.NoError(t, err)
			assert.Len(t, recent, 2)

			limited, err := store.ListDispatches(ctx, DispatchFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestNormalizeDispatchLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeDispatchLimit(0))
	assert.Equal(t, 100, normalizeDispatchLimit(-1))
	assert.Equal(t, 1000, normalizeDispatchLimit(5000))
	assert.Equal(t, 25, normalizeDispatchLimit(25))
}
