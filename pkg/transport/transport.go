// Package transport defines the HTTP collaborator the resolver and request
// flows use to reach remote services, and helpers for interpreting callback
// URIs that carry responses back.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrNetwork is returned for connection failures, timeouts, cancellation and
// non-2xx responses.
var ErrNetwork = errors.New("network request failed")

// Transport posts and fetches JSON documents.
type Transport interface {
	// Post sends body as application/json and returns the response body.
	// A non-empty bearer is sent as an Authorization header.
	Post(ctx context.Context, url string, body []byte, bearer string) ([]byte, error)

	// Get fetches url and returns the response body.
	Get(ctx context.Context, url string, bearer string) ([]byte, error)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with HTTP %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrNetwork) match status failures.
func (e *StatusError) Unwrap() error {
	return ErrNetwork
}
