// ABOUTME: Contract tests for the SQLite schema behind the replay ledger and dispatch log.
// ABOUTME: Existing databases must keep opening after upgrades, so columns only ever get added.

package contract

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/realtime-gateway/internal/store"
)

// expectedSchema lists every column the store reads or writes.
var expectedSchema = map[string][]string{
	"replay_entries": {
		"replay_key", "fingerprint", "state",
		"response", "updated_at", "expires_at",
	},
	"dispatches": {
		"dispatch_id", "task_id", "session_id",
		"replay_key", "route", "status", "attempts",
		"error", "duration_ms", "created_at",
	},
}

var expectedIndexes = []string{
	"idx_replay_updated",
	"idx_dispatches_task",
	"idx_dispatches_session",
}

// openSchemaDB lets the store create its schema, then opens a second raw
// connection for introspection.
func openSchemaDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "contract.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err, "creating store")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err, "opening raw connection")

	t.Cleanup(func() {
		_ = db.Close()
		_ = s.Close()
	})
	return db
}

func columnsOf(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT name FROM pragma_table_info('%s')", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func namesOf(ctx context.Context, db *sql.DB, kind string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%'", kind)
	if err != nil {
		return nil, fmt.Errorf("listing %s objects: %w", kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning %s name: %w", kind, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func TestSchemaColumns(t *testing.T) {
	db := openSchemaDB(t)

	for table, want := range expectedSchema {
		t.Run(table, func(t *testing.T) {
			got, err := columnsOf(t.Context(), db, table)
			require.NoError(t, err)
			require.NotEmpty(t, got, "table %s should exist", table)

			for _, col := range want {
				assert.Contains(t, got, col, "column %s.%s should exist", table, col)
			}
			for _, col := range got {
				if !slices.Contains(want, col) {
					t.Logf("INFO: extra column %s.%s not in contract (consider adding)", table, col)
				}
			}
		})
	}
}

func TestSchemaTables(t *testing.T) {
	db := openSchemaDB(t)

	tables, err := namesOf(t.Context(), db, "table")
	require.NoError(t, err)

	for table := range expectedSchema {
		assert.Contains(t, tables, table)
	}
}

func TestSchemaIndexes(t *testing.T) {
	db := openSchemaDB(t)

	indexes, err := namesOf(t.Context(), db, "index")
	require.NoError(t, err)

	for _, idx := range expectedIndexes {
		assert.Contains(t, indexes, idx)
	}
}

func TestSchemaCheckConstraints(t *testing.T) {
	db := openSchemaDB(t)
	ctx := t.Context()

	_, err := db.ExecContext(ctx,
		`INSERT INTO replay_entries (replay_key, fingerprint, state, updated_at, expires_at) VALUES ('k', 'f', 'bogus', 1, 2)`)
	assert.Error(t, err, "replay_entries.state should reject unknown states")

	_, err = db.ExecContext(ctx,
		`INSERT INTO dispatches (dispatch_id, task_id, session_id, replay_key, status, created_at) VALUES ('d', 't', 's', 'k', 'bogus', 1)`)
	assert.Error(t, err, "dispatches.status should reject unknown statuses")

	_, err = db.ExecContext(ctx,
		`INSERT INTO dispatches (dispatch_id, task_id, session_id, replay_key, status, created_at) VALUES ('d', 't', 's', 'k', 'completed', 1)`)
	assert.NoError(t, err)
}
