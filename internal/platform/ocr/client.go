// Package ocr provides an HTTP client for the document text-extraction
// service used to process uploaded prescriptions.
package ocr

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

var (
	// ErrUnavailable is returned when the service is not configured or
	// all delivery attempts were exhausted.
	ErrUnavailable = errors.New("ocr service unavailable")

	// ErrExtractionFailed is returned when the service responded but
	// could not extract text from the document.
	ErrExtractionFailed = errors.New("ocr extraction failed")
)

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

// Client calls the OCR service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a Client for the given base URL. An empty base URL
// disables the client; ExtractText then returns ErrUnavailable.
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

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type extractResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// ExtractText posts the document to the service and returns the extracted
// text. Transport errors and 5xx responses are retried with backoff; a 4xx
// response or an unsuccessful extraction result is terminal.
func (c *Client) ExtractText(ctx context.Context, doc []byte, contentType string) (string, error) {
	if !c.Enabled() {
		metrics.RecordUpstreamRequest("ocr", "disabled")
		return "", ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.RecordUpstreamRequest("ocr", "timeout")
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		text, retryable, err := c.extractOnce(ctx, doc, contentType)
		if err == nil {
			metrics.RecordUpstreamRequest("ocr", "ok")
			return text, nil
		}
		if !retryable {
			metrics.RecordUpstreamRequest("ocr", "error")
			return "", err
		}
		lastErr = err
	}

	metrics.RecordUpstreamRequest("ocr", "timeout")
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) extractOnce(ctx context.Context, doc []byte, contentType string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(doc))
	if err != nil {
		return "", false, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return "", true, fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("%w: unexpected status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var out extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", true, fmt.Errorf("decode ocr response: %w", err)
	}
	if !out.Success {
		if out.Error != "" {
			return "", false, fmt.Errorf("%w: %s", ErrExtractionFailed, out.Error)
		}
		return "", false, ErrExtractionFailed
	}
	return out.Text, false, nil
}
