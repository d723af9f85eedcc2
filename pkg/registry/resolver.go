package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/jsonrpc"
	"github.com/capiscio/didjwt/pkg/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("didjwt/registry")

// DefaultGasLimit is the gas budget for registry mutations.
const DefaultGasLimit = 70000

// Resolver reads and writes identity state in the ERC-1056 registry of one
// or more networks. It keeps no per-identity state between calls, so it is
// safe for concurrent use and cancellation never leaves stale data behind.
type Resolver struct {
	networks []*networkClient
	logger   zerolog.Logger
	now      func() time.Time
	gasLimit uint64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithGasLimit overrides DefaultGasLimit.
func WithGasLimit(limit uint64) Option {
	return func(r *Resolver) { r.gasLimit = limit }
}

// NewResolver creates a resolver for the given networks. The first network
// serves did:ethr identifiers that name no network.
func NewResolver(t transport.Transport, networks []Network, opts ...Option) (*Resolver, error) {
	if len(networks) == 0 {
		return nil, errors.New("registry: at least one network is required")
	}
	r := &Resolver{
		logger:   zerolog.Nop(),
		now:      time.Now,
		gasLimit: DefaultGasLimit,
	}
	for _, n := range networks {
		if n.RPCURL == "" {
			return nil, fmt.Errorf("registry: network %q has no RPC URL", n.Name)
		}
		r.networks = append(r.networks, &networkClient{Network: n, rpc: jsonrpc.NewClient(n.RPCURL, t)})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// target resolves an identifier to the network and address it lives at.
func (r *Resolver) target(id string) (*did.DID, *networkClient, error) {
	parsed, err := did.Parse(id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnknownIdentifierMethod, err)
	}
	net, err := r.network(parsed.Network)
	if err != nil {
		return nil, nil, err
	}
	return parsed, net, nil
}

// classify maps lower-level failures onto the resolver's error kinds.
func classify(op string, err error) error {
	var rpcErr *jsonrpc.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrNetwork),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrNetworkUnavailable, err)
	case errors.Is(err, jsonrpc.ErrInvalidResponse):
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	case errors.As(err, &rpcErr):
		// The node answered but refused the request (rate limit, unknown
		// method, pruned state): the registry is not reachable through it.
		return fmt.Errorf("%s: %w: %w", op, ErrNetworkUnavailable, rpcErr)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Resolver) call(ctx context.Context, net *networkClient, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	out, err := net.rpc.EthCall(ctx, net.Registry, data)
	if err != nil {
		return nil, classify(method, err)
	}
	// An empty result means no contract code at the registry address, which
	// is a misconfigured network rather than an identity without a record.
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w: empty result from %s", method, ErrMalformedResponse, net.Registry.Hex())
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("%s: %w: %v", method, ErrMalformedResponse, err)
	}
	return values, nil
}
