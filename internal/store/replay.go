// ABOUTME: Replay ledger persistence on the replay_entries table
// ABOUTME: Implements replay.EntryStore and replay.Pruner for SQLiteStore

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2389/realtime-gateway/internal/replay"
)

var (
	_ replay.EntryStore = (*SQLiteStore)(nil)
	_ replay.Pruner     = (*SQLiteStore)(nil)
)

// GetReplayEntry loads an entry by key. Expired rows are returned until pruned;
// the ledger judges liveness from UpdatedAt on its own clock.
func (s *SQLiteStore) GetReplayEntry(ctx context.Context, key string) (*replay.Entry, error) {
	var (
		e         replay.Entry
		state     string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT replay_key, fingerprint, state, response, updated_at
		FROM replay_entries
		WHERE replay_key = ?
	`, key).Scan(&e.Key, &e.Fingerprint, &state, &e.Response, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, replay.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying replay entry: %w", err)
	}

	e.State = replay.EntryState(state)
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &e, nil
}

// PutReplayEntry inserts or replaces an entry. It expires ttl after UpdatedAt.
func (s *SQLiteStore) PutReplayEntry(ctx context.Context, e *replay.Entry, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_entries (replay_key, fingerprint, state, response, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(replay_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			state = excluded.state,
			response = excluded.response,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`,
		e.Key,
		e.Fingerprint,
		string(e.State),
		e.Response,
		e.UpdatedAt.UnixNano(),
		e.UpdatedAt.Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting replay entry: %w", err)
	}
	return nil
}

// CreateReplayEntry inserts an entry unless a row for the key is still live
// at e.UpdatedAt. The conditional upsert is a single statement, so concurrent
// writers on the same database see exactly one success.
func (s *SQLiteStore) CreateReplayEntry(ctx context.Context, e *replay.Entry, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_entries (replay_key, fingerprint, state, response, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(replay_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			state = excluded.state,
			response = excluded.response,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
		WHERE replay_entries.expires_at <= excluded.updated_at
	`,
		e.Key,
		e.Fingerprint,
		string(e.State),
		e.Response,
		e.UpdatedAt.UnixNano(),
		e.UpdatedAt.Add(ttl).UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("creating replay entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("counting created entries: %w", err)
	}
	return n > 0, nil
}

// DeleteReplayEntry removes an entry. Missing keys are not an error.
func (s *SQLiteStore) DeleteReplayEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM replay_entries WHERE replay_key = ?`, key); err != nil {
		return fmt.Errorf("deleting replay entry: %w", err)
	}
	return nil
}

// PruneReplayEntries deletes entries last updated before olderThan.
func (s *SQLiteStore) PruneReplayEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM replay_entries WHERE updated_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning replay entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned entries: %w", err)
	}
	if n > 0 {
		s.logger.Debug("pruned replay entries", "count", n)
	}
	return n, nil
}
