// ABOUTME: Tests for the retrying orchestrator client against httptest servers.
// ABOUTME: Covers retry on 5xx/429, fail-fast on 4xx, timeouts, and backoff.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/realtime-gateway/internal/envelope"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() *envelope.Envelope {
	env := envelope.New(envelope.TypeOrchestratorRequest, "gateway", "s1", map[string]any{
		"intent": "story",
		"input":  map[string]any{"text": "once upon a time"},
	})
	env.RunID = "r1"
	return env
}

func okResponse(w http.ResponseWriter) {
	resp := envelope.New(envelope.TypeOrchestratorResponse, "orchestrator", "s1", map[string]any{
		"status": "completed",
		"route":  RouteStorytellerAgent,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// scriptedServer answers each attempt with the next status; 200 sends an envelope.
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		if status == http.StatusOK {
			okResponse(w)
			return
		}
		http.Error(w, "upstream said no", status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(maxRetries int, timeout time.Duration) *Client {
	return NewClient(Options{
		Timeout:      timeout,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
		Logger:       testLogger(),
	})
}

func TestSend_RetriesAfter503(t *testing.T) {
	srv, calls := scriptedServer(t, 503, 200)

	resp, err := newTestClient(2, time.Second).Send(context.Background(), srv.URL, testRequest())
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status())
	assert.Equal(t, RouteStorytellerAgent, resp.Route())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_NoRetryOn400(t *testing.T) {
	srv, calls := scriptedServer(t, 400)

	_, err := newTestClient(3, time.Second).Send(context.Background(), srv.URL, testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 400, httpErr.StatusCode)
	assert.False(t, httpErr.Retriable)
	assert.Contains(t, httpErr.Body, "upstream said no")
}

func TestSend_429ThenSuccess(t *testing.T) {
	srv, calls := scriptedServer(t, 429, 429, 200)

	resp, err := newTestClient(3, time.Second).Send(context.Background(), srv.URL, testRequest())
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_RetriableExhausted(t *testing.T) {
	srv, calls := scriptedServer(t, 502)

	_, err := newTestClient(2, time.Second).Send(context.Background(), srv.URL, testRequest())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.True(t, httpErr.Retriable)
	assert.Equal(t, 502, httpErr.StatusCode)
	assert.Equal(t, 3, httpErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_TimeoutExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient(1, 40*time.Millisecond).Send(context.Background(), srv.URL, testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, int32(2), calls.Load())

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 40*time.Millisecond, timeoutErr.Timeout)
	assert.Equal(t, 2, timeoutErr.Attempts)
}

func TestSend_TransportErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(1, time.Second).Send(context.Background(), url, testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posting to orchestrator")
}

func TestSend_LinearBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Options{Timeout: time.Second, MaxRetries: 2, RetryBackoff: 30 * time.Millisecond, Logger: testLogger()})
	_, err := client.Send(context.Background(), srv.URL, testRequest())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 30*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 60*time.Millisecond)
}

func TestSend_CallerCancelStopsBackoff(t *testing.T) {
	srv, calls := scriptedServer(t, 503)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(Options{Timeout: time.Second, MaxRetries: 5, RetryBackoff: time.Hour, Logger: testLogger()})
	start := time.Now()
	_, err := client.Send(ctx, srv.URL, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_BodySnippetTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	_, err := newTestClient(1, time.Second).Send(context.Background(), srv.URL, testRequest())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Len(t, httpErr.Body, maxBodySnippet)
}

func TestSend_PostsEnvelopeJSON(t *testing.T) {
	var got envelope.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		okResponse(w)
	}))
	defer srv.Close()

	req := testRequest()
	_, err := newTestClient(1, time.Second).Send(context.Background(), srv.URL, req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "story", got.Intent())
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) Attempt(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestSend_Observer(t *testing.T) {
	srv, _ := scriptedServer(t, 500, 200)
	obs := &recordingObserver{}

	client := NewClient(Options{Timeout: time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond, Logger: testLogger(), Observer: obs})
	_, err := client.Send(context.Background(), srv.URL, testRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{OutcomeRetriableError, OutcomeSuccess}, obs.outcomes)
}

func TestShouldRetryStatus(t *testing.T) {
	for status, want := range map[int]bool{
		400: false, 401: false, 404: false, 409: false,
		429: true, 500: true, 502: true, 503: true, 504: true,
	} {
		assert.Equal(t, want, ShouldRetryStatus(status), "status %d", status)
	}
}

func TestDo_ReportsAttempts(t *testing.T) {
	srv, calls := scriptedServer(t, 503, 200)

	res, err := newTestClient(2, time.Second).Do(context.Background(), srv.URL, testRequest())
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_ReportsAttemptsOnFailure(t *testing.T) {
	srv, _ := scriptedServer(t, 502)

	res, err := newTestClient(1, time.Second).Do(context.Background(), srv.URL, testRequest())
	require.Error(t, err)
	assert.Nil(t, res.Envelope)
	assert.Equal(t, 2, res.Attempts)
}

func TestNoRetries(t *testing.T) {
	srv, calls := scriptedServer(t, 503, 200)

	_, err := newTestClient(NoRetries, time.Second).Send(context.Background(), srv.URL, testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesFromConfig(t *testing.T) {
	assert.Equal(t, NoRetries, RetriesFromConfig(0))
	assert.Equal(t, NoRetries, RetriesFromConfig(-3))
	assert.Equal(t, 3, RetriesFromConfig(3))
}
