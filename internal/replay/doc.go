// Package replay derives idempotency keys and content fingerprints for inbound
// envelopes and records which keys have already been processed.
//
// # Keys and fingerprints
//
// ExtractIdempotencyKey looks for a caller-supplied token in payload,
// payload.meta and payload.input (in that order), then falls back to the run
// id and finally the envelope id. BuildReplayKey combines it with session,
// run and intent. BuildFingerprint hashes the semantic content of a request
// using StableJSON, so key order inside nested objects never matters.
//
// # Ledger
//
// A Ledger remembers replay keys together with their fingerprint and, once
// processing finishes, the response envelope:
//
//	out, err := ledger.Begin(ctx, key, fp)
//	switch out.Decision {
//	case DecisionNew:      // dispatch, then ledger.Complete or ledger.Abandon
//	case DecisionReplay:   // return out.Response
//	case DecisionInFlight: // same request still running
//	case DecisionConflict: // same key, different content
//	}
//
// MemoryLedger keeps entries in process. PersistentLedger delegates storage
// to an EntryStore (SQLite via the store package, or Redis via RedisStore).
package replay
