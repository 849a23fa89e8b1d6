// ABOUTME: Package orchestrator delivers request envelopes to the orchestrator service.
// ABOUTME: It also contains the orchestrator's own intent router and HTTP handler.

// Package orchestrator contains both sides of the gateway-to-orchestrator hop.
//
// Client posts an envelope over HTTP with a per-attempt timeout and linear
// backoff. 5xx and 429 responses and transport failures are retried; other
// non-2xx responses fail immediately with an *HTTPError. When every attempt
// times out the error is a *TimeoutError.
//
// Server is the orchestrator itself: it maps payload.intent to an agent route
// through a Router and forwards the envelope to that agent with a Client.
package orchestrator
