// ABOUTME: Minimal HTTP client for the gateway's JSON API used by gatewayctl.
// ABOUTME: Error envelopes are decoded into APIError with their stable code.

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway returned %d %s: %s", e.Status, e.Code, e.Message)
}

type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newGatewayClient(baseURL, token string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes a JSON body into out. It returns the
// response headers so callers can read X-Task-Id and X-Replayed.
func (c *gatewayClient) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeAPIError(resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.Header, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.Header, nil
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(data))}
	env, err := envelope.Unmarshal(data)
	if err != nil {
		return apiErr
	}
	p := env.PayloadMap()
	if code, ok := p["code"].(string); ok {
		apiErr.Code = code
	}
	if msg, ok := p["message"].(string); ok {
		apiErr.Message = msg
	}
	return apiErr
}
