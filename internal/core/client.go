package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxResponseBytes caps one node response body.
const MaxResponseBytes = 16 << 20

const (
	metricsPath = "/metrics"
	infoPath    = "/info"
	cursorsPath = "/getcursor"

	// unsupportedCommandMarker is part of the plain-text command list a node returns for unknown commands.
	unsupportedCommandMarker = "Supported HTTP commands"
)

// FetchError reports that a node endpoint could not be reached or answered with a non-success status.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
	case e.Body != "":
		return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client fetches JSON snapshots from one stellar-core admin HTTP endpoint.
// Params: base address and request timeout.
// Returns: reusable client safe for concurrent requests.
type Client struct {
	address string
	client  *http.Client
}

// NewClient creates a node client.
// Params: address base URL such as http://127.0.0.1:11626; timeout per-request timeout (0 disables).
// Returns: configured client.
func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: strings.TrimRight(strings.TrimSpace(address), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Address returns the normalized base URL.
func (c *Client) Address() string {
	return c.address
}

// URL returns the absolute URL for an endpoint path.
func (c *Client) URL(path string) string {
	return c.address + path
}

// Metrics fetches the /metrics snapshot.
// Params: ctx for cancellation.
// Returns: raw JSON body or FetchError.
func (c *Client) Metrics(ctx context.Context) ([]byte, error) {
	body, status, err := c.get(ctx, metricsPath)
	if err != nil {
		return nil, err
	}
	if !successStatus(status) {
		return nil, c.statusError(metricsPath, status, body)
	}
	return body, nil
}

// Info fetches the /info snapshot.
// Params: ctx for cancellation.
// Returns: raw JSON body or FetchError.
func (c *Client) Info(ctx context.Context) ([]byte, error) {
	body, status, err := c.get(ctx, infoPath)
	if err != nil {
		return nil, err
	}
	if !successStatus(status) {
		return nil, c.statusError(infoPath, status, body)
	}
	return body, nil
}

// Cursors fetches the /getcursor snapshot.
// Some node modes do not implement getcursor and answer 404 with the plain-text command list.
// Params: ctx for cancellation.
// Returns: raw body and true when cursors are supported; false without error for unsupported nodes.
func (c *Client) Cursors(ctx context.Context) ([]byte, bool, error) {
	body, status, err := c.get(ctx, cursorsPath)
	if err != nil {
		return nil, false, err
	}
	if !successStatus(status) && status != http.StatusNotFound {
		return nil, false, c.statusError(cursorsPath, status, body)
	}
	if bytes.Contains(body, []byte(unsupportedCommandMarker)) {
		return nil, false, nil
	}
	return body, true, nil
}

// get issues one GET and reads a bounded body.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	url := c.URL(path)
	if c.address == "" {
		return nil, 0, &FetchError{URL: url, Err: errors.New("node address is required")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	lim := &io.LimitedReader{R: resp.Body, N: MaxResponseBytes + 1}
	body, err := io.ReadAll(lim)
	if err != nil {
		return nil, resp.StatusCode, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxResponseBytes {
		return nil, resp.StatusCode, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", MaxResponseBytes)}
	}
	return body, resp.StatusCode, nil
}

func (c *Client) statusError(path string, status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > 2048 {
		text = text[:2048]
	}
	return &FetchError{URL: c.URL(path), StatusCode: status, Body: text}
}

func successStatus(status int) bool {
	return status >= 200 && status < 300
}
