// ABOUTME: Retrying HTTP client for posting envelopes to the orchestrator.
// ABOUTME: Linear backoff, per-attempt timeout, and typed terminal errors.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// Defaults used when Options fields are zero.
const (
	DefaultTimeout      = 8 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryBackoff = 250 * time.Millisecond
)

// Attempt outcomes reported to an Observer.
const (
	OutcomeSuccess        = "success"
	OutcomeHTTPError      = "http_error"
	OutcomeRetriableError = "retriable_http_error"
	OutcomeTimeout        = "timeout"
	OutcomeTransportError = "transport_error"
)

// Observer receives one call per attempt.
type Observer interface {
	Attempt(outcome string, d time.Duration)
}

// NoRetries is the Options.MaxRetries value for a single attempt. Zero means
// DefaultMaxRetries.
const NoRetries = -1

// RetriesFromConfig maps a configured max_retries, where 0 means a single
// attempt, onto Options.MaxRetries.
func RetriesFromConfig(n int) int {
	if n <= 0 {
		return NoRetries
	}
	return n
}

// Options configures a Client. Set MaxRetries to NoRetries to disable retries.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Observer     Observer
}

// Client posts envelopes with bounded retries. It is safe for concurrent use.
type Client struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	http       *http.Client
	logger     *slog.Logger
	observer   Observer
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		http:       opts.HTTPClient,
		logger:     opts.Logger,
		observer:   opts.Observer,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoff < 0 {
		c.backoff = 0
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Result is the outcome of Do. Attempts counts every POST made, including
// the failing final one when Do returns an error.
type Result struct {
	Envelope *envelope.Envelope
	Attempts int
}

// Send posts env to url and decodes the response envelope.
func (c *Client) Send(ctx context.Context, url string, env *envelope.Envelope) (*envelope.Envelope, error) {
	res, err := c.Do(ctx, url, env)
	return res.Envelope, err
}

// Do is Send that also reports how many attempts were made.
func (c *Client) Do(ctx context.Context, url string, env *envelope.Envelope) (Result, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Result{}, fmt.Errorf("encoding envelope: %w", err)
	}

	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		last := attempt == attempts-1

		resp, retry, err := c.attempt(ctx, url, body, attempt+1, last)
		if err == nil {
			return Result{Envelope: resp, Attempts: attempt + 1}, nil
		}
		lastErr = err
		if !retry || last {
			return Result{Attempts: attempt + 1}, err
		}

		c.logger.Debug("retrying orchestrator request",
			"url", url,
			"attempt", attempt+1,
			"error", err,
		)
		if err := c.sleep(ctx, c.backoff*time.Duration(attempt+1)); err != nil {
			return Result{Attempts: attempt + 1}, err
		}
	}
	return Result{Attempts: attempts}, lastErr
}

// attempt performs one POST. retry reports whether another attempt may help.
func (c *Client) attempt(ctx context.Context, url string, body []byte, n int, last bool) (*envelope.Envelope, bool, error) {
	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			c.observe(OutcomeTimeout, start)
			if last {
				return nil, false, &TimeoutError{Timeout: c.timeout, Attempts: n}
			}
			return nil, true, fmt.Errorf("attempt %d timed out after %s", n, c.timeout)
		}
		c.observe(OutcomeTransportError, start)
		return nil, true, fmt.Errorf("posting to orchestrator: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(OutcomeTransportError, start)
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && last {
			return nil, false, &TimeoutError{Timeout: c.timeout, Attempts: n}
		}
		return nil, true, fmt.Errorf("reading orchestrator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retriable := ShouldRetryStatus(resp.StatusCode)
		if retriable {
			c.observe(OutcomeRetriableError, start)
		} else {
			c.observe(OutcomeHTTPError, start)
		}
		return nil, retriable, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       snippet(data),
			Retriable:  retriable,
			Attempts:   n,
		}
	}

	out, err := envelope.Unmarshal(data)
	if err != nil {
		c.observe(OutcomeHTTPError, start)
		return nil, false, fmt.Errorf("decoding orchestrator response: %w", err)
	}
	c.observe(OutcomeSuccess, start)
	return out, false, nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.Attempt(outcome, time.Since(start))
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
