// ABOUTME: SQLite implementation of gateway persistence using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on startup

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements DispatchStore and replay.EntryStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS replay_entries (
			replay_key  TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			state       TEXT NOT NULL,
			response    BLOB,
			updated_at  INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL,

			CHECK (state IN ('in_flight', 'completed'))
		);

		CREATE INDEX IF NOT EXISTS idx_replay_updated ON replay_entries(updated_at);

		CREATE TABLE IF NOT EXISTS dispatches (
			dispatch_id TEXT PRIMARY KEY,
			task_id     TEXT NOT NULL,
			session_id  TEXT NOT NULL,
			replay_key  TEXT NOT NULL,
			route       TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,

			CHECK (status IN ('accepted', 'completed', 'failed', 'replayed'))
		);

		CREATE INDEX IF NOT EXISTS idx_dispatches_task ON dispatches(task_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_dispatches_session ON dispatches(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
