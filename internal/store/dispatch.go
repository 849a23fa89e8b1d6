// ABOUTME: Dispatch log entity methods for recording orchestrator outcomes
// ABOUTME: Append-only; listed newest first with optional task/session filters

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// normalizeDispatchLimit applies default (100) and cap (1000) to the limit.
func normalizeDispatchLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// AppendDispatch appends a dispatch record.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendDispatch(ctx context.Context, d *Dispatch) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (dispatch_id, task_id, session_id, replay_key, route, status, attempts, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.TaskID,
		d.SessionID,
		d.ReplayKey,
		d.Route,
		string(d.Status),
		d.Attempts,
		d.Error,
		d.DurationMs,
		d.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting dispatch: %w", err)
	}

	s.logger.Debug("appended dispatch",
		"id", d.ID,
		"task_id", d.TaskID,
		"status", d.Status,
	)
	return nil
}

const dispatchQuery = `
	SELECT dispatch_id, task_id, session_id, replay_key, route, status, attempts, error, duration_ms, created_at
	FROM dispatches
	WHERE (? = '' OR task_id = ?)
	  AND (? = '' OR session_id = ?)
	  AND (? IS NULL OR created_at >= ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
`

// ListDispatches returns matching dispatches, newest first.
func (s *SQLiteStore) ListDispatches(ctx context.Context, f DispatchFilter) ([]Dispatch, error) {
	var since *int64
	if f.Since != nil {
		v := f.Since.UnixNano()
		since = &v
	}

	rows, err := s.db.QueryContext(ctx, dispatchQuery,
		f.TaskID, f.TaskID,
		f.SessionID, f.SessionID,
		since, since,
		normalizeDispatchLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var d Dispatch
		var status string
		var createdAt int64
		if err := rows.Scan(
			&d.ID,
			&d.TaskID,
			&d.SessionID,
			&d.ReplayKey,
			&d.Route,
			&status,
			&d.Attempts,
			&d.Error,
			&d.DurationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning dispatch: %w", err)
		}
		d.Status = DispatchStatus(status)
		d.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispatches: %w", err)
	}
	return out, nil
}
