package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/capiscio/didjwt/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"hello":"world"}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr := transport.NewHTTPTransport()
	got, err := tr.Post(context.Background(), server.URL, []byte(`{"hello":"world"}`), "secret")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got))
}

func TestHTTPTransport_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	got, err := transport.NewHTTPTransport().Get(context.Background(), server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestHTTPTransport_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := transport.NewHTTPTransport().Get(context.Background(), server.URL, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrNetwork)

	var statusErr *transport.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := transport.NewHTTPTransportWithClient(&http.Client{Timeout: 20 * time.Millisecond})
	_, err := tr.Get(context.Background(), server.URL, "")
	assert.ErrorIs(t, err, transport.ErrNetwork)
}

func TestHTTPTransport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transport.NewHTTPTransport().Post(ctx, "http://127.0.0.1:1", nil, "")
	assert.ErrorIs(t, err, transport.ErrNetwork)
}
