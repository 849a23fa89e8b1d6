// Package envelope defines the JSON message envelope exchanged between
// clients, the realtime gateway, and the orchestrator.
//
// An envelope always carries {id, sessionId, type, source, ts, payload}. The
// payload is kept as an untyped JSON value: clients are free to send any
// shape, and the gateway only reads a handful of well-known fields (intent,
// input, idempotencyKey, status, route) through accessor methods that degrade
// to zero values when the shape is unexpected.
package envelope
