package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LookupOwner implements Reader.
func (r *Resolver) LookupOwner(ctx context.Context, id string) (owner string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.LookupOwner", trace.WithAttributes(attribute.String("did", id)))
	defer func() { endSpan(span, err) }()

	parsed, net, err := r.target(id)
	if err != nil {
		return "", err
	}
	return r.owner(ctx, parsed, net)
}

func (r *Resolver) owner(ctx context.Context, parsed *did.DID, net *networkClient) (string, error) {
	values, err := r.call(ctx, net, "identityOwner", parsed.Address)
	if err != nil {
		return "", err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("identityOwner: %w: unexpected %T", ErrMalformedResponse, values[0])
	}
	if owner == (common.Address{}) {
		return parsed.AddressHex(), nil
	}
	return strings.ToLower(owner.Hex()), nil
}

// LookupPublicKeys implements Reader.
func (r *Resolver) LookupPublicKeys(ctx context.Context, id string) (keys []*crypto.PublicKey, err error) {
	ctx, span := tracer.Start(ctx, "Registry.LookupPublicKeys", trace.WithAttributes(attribute.String("did", id)))
	defer func() { endSpan(span, err) }()

	parsed, net, err := r.target(id)
	if err != nil {
		return nil, err
	}
	st, err := r.state(ctx, parsed, net)
	if err != nil {
		return nil, err
	}
	return st.keys, nil
}

// LookupDelegates implements Reader.
func (r *Resolver) LookupDelegates(ctx context.Context, id string) (delegates []Delegate, err error) {
	ctx, span := tracer.Start(ctx, "Registry.LookupDelegates", trace.WithAttributes(attribute.String("did", id)))
	defer func() { endSpan(span, err) }()

	parsed, net, err := r.target(id)
	if err != nil {
		return nil, err
	}
	st, err := r.state(ctx, parsed, net)
	if err != nil {
		return nil, err
	}
	return st.delegates, nil
}

// Resolve implements did.Resolver.
func (r *Resolver) Resolve(ctx context.Context, id string) (doc *did.Document, err error) {
	ctx, span := tracer.Start(ctx, "Registry.Resolve", trace.WithAttributes(attribute.String("did", id)))
	defer func() { endSpan(span, err) }()

	parsed, net, err := r.target(id)
	if err != nil {
		return nil, err
	}
	owner, err := r.owner(ctx, parsed, net)
	if err != nil {
		return nil, err
	}
	st, err := r.state(ctx, parsed, net)
	if err != nil {
		return nil, err
	}

	docID, _, _ := strings.Cut(parsed.String(), "#")
	doc = &did.Document{
		ID:         docID,
		Owner:      owner,
		PublicKeys: st.keys,
	}
	for _, d := range st.delegates {
		doc.Delegates = append(doc.Delegates, d.Address)
	}
	r.logger.Debug().
		Str("did", docID).
		Str("owner", owner).
		Int("delegates", len(doc.Delegates)).
		Int("keys", len(doc.PublicKeys)).
		Msg("resolved identity")
	return doc, nil
}

type identityState struct {
	delegates []Delegate
	keys      []*crypto.PublicKey
}

// state replays the identity's delegate and attribute history and keeps what
// is still valid now.
func (r *Resolver) state(ctx context.Context, parsed *did.DID, net *networkClient) (*identityState, error) {
	events, err := r.history(ctx, parsed, net)
	if err != nil {
		return nil, err
	}
	now := uint64(r.now().Unix())

	// Later events override earlier ones; first appearance fixes the order.
	var (
		delegateOrder []Delegate
		attrOrder     []string
	)
	delegateValidTo := map[Delegate]uint64{}
	attrs := map[string]registryEvent{}

	for _, ev := range events {
		switch ev.kind {
		case eventDelegateChanged:
			key := Delegate{Type: ev.delegateType, Address: strings.ToLower(ev.delegate.Hex())}
			if _, seen := delegateValidTo[key]; !seen {
				delegateOrder = append(delegateOrder, key)
			}
			delegateValidTo[key] = ev.validTo
		case eventAttributeChanged:
			key := ev.name + "\x00" + string(ev.value)
			if _, seen := attrs[key]; !seen {
				attrOrder = append(attrOrder, key)
			}
			attrs[key] = ev
		}
	}

	st := &identityState{}
	for _, d := range delegateOrder {
		validTo := delegateValidTo[d]
		if validTo <= now {
			continue
		}
		if d.Type != DelegateVerificationKey && d.Type != DelegateSigAuth {
			continue
		}
		st.delegates = append(st.delegates, Delegate{Type: d.Type, Address: d.Address, ValidTo: validTo})
	}
	for _, key := range attrOrder {
		ev := attrs[key]
		if ev.validTo <= now {
			continue
		}
		pub, ok := publicKeyAttribute(ev.name, ev.value)
		if !ok {
			r.logger.Debug().Str("attribute", ev.name).Msg("skipping attribute that is not a secp256k1 public key")
			continue
		}
		st.keys = append(st.keys, pub)
	}
	return st, nil
}

// publicKeyAttribute decodes did/pub/Secp256k1/<purpose>[/<encoding>].
func publicKeyAttribute(name string, value []byte) (*crypto.PublicKey, bool) {
	parts := strings.Split(name, "/")
	if len(parts) < 4 || parts[0] != "did" || parts[1] != "pub" || parts[2] != "Secp256k1" {
		return nil, false
	}
	if parts[3] != DelegateVerificationKey && parts[3] != DelegateSigAuth {
		return nil, false
	}
	encoding := "hex"
	if len(parts) > 4 {
		encoding = parts[4]
	}

	if pub, err := crypto.ParsePublicKey(value); err == nil {
		return pub, true
	}
	// Some writers store the textual encoding instead of raw bytes.
	var (
		raw []byte
		err error
	)
	switch encoding {
	case "hex":
		pub, err := crypto.ParsePublicKeyHex(string(value))
		return pub, err == nil
	case "base64":
		raw, err = base64.StdEncoding.DecodeString(string(value))
	case "base58":
		raw, err = base58.Decode(string(value))
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	pub, err := crypto.ParsePublicKey(raw)
	return pub, err == nil
}

type registryEvent struct {
	kind string
	// DIDOwnerChanged
	owner common.Address
	// DIDDelegateChanged
	delegateType string
	delegate     common.Address
	// DIDAttributeChanged
	name  string
	value []byte

	validTo        uint64
	previousChange uint64
}

type ownerChangedLog struct {
	Owner          common.Address
	PreviousChange *big.Int
}

type delegateChangedLog struct {
	DelegateType   [32]byte
	Delegate       common.Address
	ValidTo        *big.Int
	PreviousChange *big.Int
}

type attributeChangedLog struct {
	Name           [32]byte
	Value          []byte
	ValidTo        *big.Int
	PreviousChange *big.Int
}

// history walks the registry's linked list of change blocks, newest first,
// and returns the identity's events in chronological order.
func (r *Resolver) history(ctx context.Context, parsed *did.DID, net *networkClient) ([]registryEvent, error) {
	values, err := r.call(ctx, net, "changed", parsed.Address)
	if err != nil {
		return nil, err
	}
	changed, ok := values[0].(*big.Int)
	if !ok || !changed.IsUint64() {
		return nil, fmt.Errorf("changed: %w", ErrMalformedResponse)
	}

	identityTopic := common.BytesToHash(parsed.Address.Bytes())
	topics := [][]common.Hash{
		{
			contractABI.Events[eventOwnerChanged].ID,
			contractABI.Events[eventDelegateChanged].ID,
			contractABI.Events[eventAttributeChanged].ID,
		},
		{identityTopic},
	}

	var events []registryEvent
	block := changed.Uint64()
	for block != 0 {
		logs, err := net.rpc.GetLogs(ctx, jsonrpc.FilterQuery{
			Address:   net.Registry,
			Topics:    topics,
			FromBlock: block,
			ToBlock:   block,
		})
		if err != nil {
			return nil, classify("eth_getLogs", err)
		}

		// Later changes in the same block point back at that block, so only
		// the smallest earlier block continues the walk.
		var (
			inBlock []registryEvent
			prev    uint64
			linked  bool
		)
		for _, l := range logs {
			if len(l.Topics) < 2 || l.Topics[1] != identityTopic {
				continue
			}
			ev, err := decodeLog(l)
			if err != nil {
				return nil, err
			}
			inBlock = append(inBlock, ev)
			if ev.previousChange < block && (!linked || ev.previousChange < prev) {
				prev, linked = ev.previousChange, true
			}
		}
		if len(inBlock) == 0 {
			return nil, fmt.Errorf("%w: no events for %s in change block %d", ErrMalformedResponse, parsed.String(), block)
		}
		events = append(inBlock, events...)
		block = prev
	}
	return events, nil
}

func decodeLog(l jsonrpc.Log) (registryEvent, error) {
	if len(l.Topics) == 0 {
		return registryEvent{}, fmt.Errorf("%w: log without topics", ErrMalformedResponse)
	}
	event, err := contractABI.EventByID(l.Topics[0])
	if err != nil {
		return registryEvent{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	ev := registryEvent{kind: event.Name}
	switch event.Name {
	case eventOwnerChanged:
		var out ownerChangedLog
		if err := contractABI.UnpackIntoInterface(&out, event.Name, l.Data); err != nil {
			return ev, fmt.Errorf("%s: %w: %v", event.Name, ErrMalformedResponse, err)
		}
		ev.owner = out.Owner
		ev.previousChange = clampUint64(out.PreviousChange)
	case eventDelegateChanged:
		var out delegateChangedLog
		if err := contractABI.UnpackIntoInterface(&out, event.Name, l.Data); err != nil {
			return ev, fmt.Errorf("%s: %w: %v", event.Name, ErrMalformedResponse, err)
		}
		ev.delegateType = fromBytes32(out.DelegateType)
		ev.delegate = out.Delegate
		ev.validTo = clampUint64(out.ValidTo)
		ev.previousChange = clampUint64(out.PreviousChange)
	case eventAttributeChanged:
		var out attributeChangedLog
		if err := contractABI.UnpackIntoInterface(&out, event.Name, l.Data); err != nil {
			return ev, fmt.Errorf("%s: %w: %v", event.Name, ErrMalformedResponse, err)
		}
		ev.name = fromBytes32(out.Name)
		ev.value = out.Value
		ev.validTo = clampUint64(out.ValidTo)
		ev.previousChange = clampUint64(out.PreviousChange)
	default:
		return ev, fmt.Errorf("%w: unexpected event %s", ErrMalformedResponse, event.Name)
	}
	return ev, nil
}

// clampUint64 saturates values such as the registry's "forever" validity.
func clampUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
