// ABOUTME: Typed errors returned by the orchestrator client.
// ABOUTME: Callers match them with errors.As to choose a gateway error code.

package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// maxBodySnippet bounds the response body kept on an HTTPError.
const maxBodySnippet = 300

// ErrNoRoute is returned when an intent has no configured route.
var ErrNoRoute = errors.New("no route for intent")

// HTTPError is a non-2xx orchestrator response that will not be retried.
type HTTPError struct {
	StatusCode int
	Body       string
	// Retriable is true when the status was retriable but attempts ran out.
	Retriable bool
	Attempts  int
}

func (e *HTTPError) Error() string {
	if e.Retriable {
		return fmt.Sprintf("orchestrator returned %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Body)
	}
	return fmt.Sprintf("orchestrator returned %d: %s", e.StatusCode, e.Body)
}

// TimeoutError means the final attempt hit the per-attempt timeout.
type TimeoutError struct {
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("orchestrator request timed out after %s (%d attempts)", e.Timeout, e.Attempts)
}

// ShouldRetryStatus reports whether an HTTP status is worth retrying.
func ShouldRetryStatus(status int) bool {
	return status >= 500 || status == 429
}

func snippet(body []byte) string {
	s := string(body)
	if r := []rune(s); len(r) > maxBodySnippet {
		s = string(r[:maxBodySnippet])
	}
	return s
}
