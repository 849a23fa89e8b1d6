// ABOUTME: Package events fans out envelopes to subscribers of a session.
// ABOUTME: Used to push task updates to WebSocket clients.

// Package events provides an in-memory, per-session publish/subscribe hub.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event rather than stalling the publisher.
package events
