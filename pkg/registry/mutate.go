package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChangeOwner implements Writer. The transaction is sent even when signer is
// not the current owner; the registry rejects it on-chain and the failure
// shows up through CheckReceipt.
func (r *Resolver) ChangeOwner(ctx context.Context, id, newOwner string, signer crypto.Signer) (txHash string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.ChangeOwner", trace.WithAttributes(
		attribute.String("did", id),
		attribute.String("newOwner", newOwner),
	))
	defer func() { endSpan(span, err) }()

	next, err := parseAddress(newOwner)
	if err != nil {
		return "", err
	}
	return r.mutate(ctx, "changeOwner", id, signer, func(identity common.Address) []interface{} {
		return []interface{}{identity, next}
	})
}

// AddDelegate implements Writer. validity is in seconds.
func (r *Resolver) AddDelegate(ctx context.Context, id, delegateType, delegate string, validity uint64, signer crypto.Signer) (txHash string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.AddDelegate", trace.WithAttributes(
		attribute.String("did", id),
		attribute.String("delegateType", delegateType),
	))
	defer func() { endSpan(span, err) }()

	kind, err := toBytes32(delegateType)
	if err != nil {
		return "", err
	}
	addr, err := parseAddress(delegate)
	if err != nil {
		return "", err
	}
	return r.mutate(ctx, "addDelegate", id, signer, func(identity common.Address) []interface{} {
		return []interface{}{identity, kind, addr, new(big.Int).SetUint64(validity)}
	})
}

// RevokeDelegate implements Writer.
func (r *Resolver) RevokeDelegate(ctx context.Context, id, delegateType, delegate string, signer crypto.Signer) (txHash string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.RevokeDelegate", trace.WithAttributes(
		attribute.String("did", id),
		attribute.String("delegateType", delegateType),
	))
	defer func() { endSpan(span, err) }()

	kind, err := toBytes32(delegateType)
	if err != nil {
		return "", err
	}
	addr, err := parseAddress(delegate)
	if err != nil {
		return "", err
	}
	return r.mutate(ctx, "revokeDelegate", id, signer, func(identity common.Address) []interface{} {
		return []interface{}{identity, kind, addr}
	})
}

// SetAttribute implements Writer. validity is in seconds.
func (r *Resolver) SetAttribute(ctx context.Context, id, name string, value []byte, validity uint64, signer crypto.Signer) (txHash string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.SetAttribute", trace.WithAttributes(
		attribute.String("did", id),
		attribute.String("name", name),
	))
	defer func() { endSpan(span, err) }()

	key, err := toBytes32(name)
	if err != nil {
		return "", err
	}
	return r.mutate(ctx, "setAttribute", id, signer, func(identity common.Address) []interface{} {
		return []interface{}{identity, key, value, new(big.Int).SetUint64(validity)}
	})
}

// RevokeAttribute implements Writer.
func (r *Resolver) RevokeAttribute(ctx context.Context, id, name string, value []byte, signer crypto.Signer) (txHash string, err error) {
	ctx, span := tracer.Start(ctx, "Registry.RevokeAttribute", trace.WithAttributes(
		attribute.String("did", id),
		attribute.String("name", name),
	))
	defer func() { endSpan(span, err) }()

	key, err := toBytes32(name)
	if err != nil {
		return "", err
	}
	return r.mutate(ctx, "revokeAttribute", id, signer, func(identity common.Address) []interface{} {
		return []interface{}{identity, key, value}
	})
}

// CheckReceipt reports whether the transaction has been mined. It returns
// ErrTransactionReverted when the registry rejected it.
func (r *Resolver) CheckReceipt(ctx context.Context, network, txHash string) (mined bool, err error) {
	ctx, span := tracer.Start(ctx, "Registry.CheckReceipt", trace.WithAttributes(attribute.String("tx", txHash)))
	defer func() { endSpan(span, err) }()

	net, err := r.network(network)
	if err != nil {
		return false, err
	}
	receipt, err := net.rpc.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return false, classify("eth_getTransactionReceipt", err)
	}
	if receipt == nil {
		return false, nil
	}
	if receipt.Status == 0 {
		return true, fmt.Errorf("%w: %s", ErrTransactionReverted, txHash)
	}
	return true, nil
}

// mutate builds, signs and broadcasts one registry transaction. Nonce and gas
// price are read fresh on every call; concurrent callers must serialise
// their own mutations.
func (r *Resolver) mutate(ctx context.Context, method, id string, signer crypto.Signer, args func(identity common.Address) []interface{}) (string, error) {
	parsed, net, err := r.target(id)
	if err != nil {
		return "", err
	}

	owner, err := r.owner(ctx, parsed, net)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(owner, signer.Address()) {
		r.logger.Warn().
			Str("did", parsed.String()).
			Str("owner", owner).
			Str("signer", signer.Address()).
			Str("method", method).
			Msg("signer is not the current owner; the registry will likely revert")
	}

	data, err := contractABI.Pack(method, args(parsed.Address)...)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", method, err)
	}
	raw, err := r.signTransaction(ctx, net, signer, data)
	if err != nil {
		return "", err
	}

	txHash, err := net.rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", classify("eth_sendRawTransaction", err)
	}
	r.logger.Info().
		Str("did", parsed.String()).
		Str("method", method).
		Str("tx", txHash).
		Msg("submitted registry transaction")
	return txHash, nil
}

// signTransaction returns the RLP-encoded signed transaction calling the
// registry with data.
func (r *Resolver) signTransaction(ctx context.Context, net *networkClient, signer crypto.Signer, data []byte) ([]byte, error) {
	from, err := parseAddress(signer.Address())
	if err != nil {
		return nil, err
	}
	nonce, err := net.rpc.GetTransactionCount(ctx, from, "pending")
	if err != nil {
		return nil, classify("eth_getTransactionCount", err)
	}
	gasPrice, err := net.rpc.GasPrice(ctx)
	if err != nil {
		return nil, classify("eth_gasPrice", err)
	}

	registry := net.Registry
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      r.gasLimit,
		To:       &registry,
		Value:    big.NewInt(0),
		Data:     data,
	})

	txSigner := net.Signer()
	hash := txSigner.Hash(tx)
	sig, err := signer.SignHash(ctx, hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	signed, err := tx.WithSignature(txSigner, sig.JOSERecoverable())
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}
	return signed.MarshalBinary()
}

func parseAddress(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	parsed, err := did.Parse(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return parsed.Address, nil
}
