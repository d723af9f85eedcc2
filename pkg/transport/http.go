package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every request made by HTTPTransport.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// HTTPTransport implements Transport over net/http. It is safe for
// concurrent use and holds no per-request state.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the default timeout.
func NewHTTPTransport() *HTTPTransport {
	return NewHTTPTransportWithClient(&http.Client{Timeout: DefaultTimeout})
}

// NewHTTPTransportWithClient creates a transport around a caller-supplied client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Post implements Transport.
func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, bearer)
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, url string, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	return t.do(req, bearer)
}

func (t *HTTPTransport) do(req *http.Request, bearer string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrNetwork, err)
	}
	return payload, nil
}
