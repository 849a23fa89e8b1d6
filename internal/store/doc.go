// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Two narrow interfaces are implemented by both SQLiteStore and MockStore:
//
//   - replay.EntryStore (plus replay.Pruner): durable replay ledger entries,
//     so duplicate submissions are recognized across gateway restarts
//   - DispatchStore: an append-only log of orchestrator dispatch outcomes
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (no cgo) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as Unix nanoseconds so range predicates compare
// numerically.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - replay.ErrEntryNotFound: unknown replay key
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(path) with a
// t.TempDir() path for integration tests.
package store
