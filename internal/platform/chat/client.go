// Package chat provides the HTTP client for the conversational health
// assistant collaborator, the sanitized patient-context builder, and the
// chat API handler.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carepulse/carepulse/internal/platform/metrics"
)

// ErrUnavailable is returned when the collaborator is not configured or
// did not produce a reply within the retry budget.
var ErrUnavailable = errors.New("chat service unavailable")

// Completion is a single reply from the collaborator.
type Completion struct {
	Text  string
	Model string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// WithBackoff sets the base delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) { cl.backoff = d }
}

// Client calls the chat collaborator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a Client for the given base URL. An empty base URL
// disables the client; Complete then returns ErrUnavailable.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled reports whether a collaborator URL is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type completeRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

type completeResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
}

// Complete sends the prompt with the sanitized patient context and returns
// the collaborator's reply. Transport errors and 5xx responses are retried
// with backoff.
func (c *Client) Complete(ctx context.Context, prompt, patientContext string) (*Completion, error) {
	if !c.Enabled() {
		metrics.RecordUpstreamRequest("chat", "disabled")
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(completeRequest{Message: prompt, Context: patientContext})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.RecordUpstreamRequest("chat", "timeout")
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		comp, retryable, err := c.completeOnce(ctx, body)
		if err == nil {
			metrics.RecordUpstreamRequest("chat", "ok")
			return comp, nil
		}
		if !retryable {
			metrics.RecordUpstreamRequest("chat", "error")
			return nil, err
		}
		lastErr = err
	}

	metrics.RecordUpstreamRequest("chat", "timeout")
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, body []byte) (*Completion, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/complete", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, true, fmt.Errorf("chat service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var out completeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, true, fmt.Errorf("decode chat response: %w", err)
	}
	if !out.Success || out.Response == "" {
		if out.Error != "" {
			return nil, false, fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
		}
		return nil, false, ErrUnavailable
	}
	return &Completion{Text: out.Response, Model: out.Model}, false, nil
}
