// Package registry resolves did:ethr and did:uport identifiers against an
// ERC-1056 identity registry and submits signed registry mutations.
package registry

import (
	"context"
	"errors"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
)

// Common errors returned by this package.
var (
	ErrNetworkUnavailable      = errors.New("registry network unavailable")
	ErrMalformedResponse       = errors.New("registry returned a malformed response")
	ErrUnknownIdentifierMethod = errors.New("identifier does not belong to a supported DID method")
	ErrTransactionReverted     = errors.New("registry transaction reverted")
	ErrUnknownNetwork          = errors.New("unknown network")
	ErrIdentityNotFound        = errors.New("identity not found")
)

// Delegate types understood by the registry.
const (
	DelegateVerificationKey = "veriKey"
	DelegateSigAuth         = "sigAuth"
)

// Reader answers point-in-time questions about an identity.
type Reader interface {
	did.Resolver

	// LookupOwner returns the controlling address, or the identity's own
	// address when the registry holds no record.
	LookupOwner(ctx context.Context, id string) (string, error)

	// LookupPublicKeys returns the public keys published as attributes.
	LookupPublicKeys(ctx context.Context, id string) ([]*crypto.PublicKey, error)

	// LookupDelegates returns delegates whose validity has not lapsed.
	LookupDelegates(ctx context.Context, id string) ([]Delegate, error)
}

// Writer submits signed registry mutations and returns the transaction hash.
// The registry contract, not the caller, decides whether signer is allowed.
type Writer interface {
	ChangeOwner(ctx context.Context, id, newOwner string, signer crypto.Signer) (string, error)
	AddDelegate(ctx context.Context, id, delegateType, delegate string, validity uint64, signer crypto.Signer) (string, error)
	RevokeDelegate(ctx context.Context, id, delegateType, delegate string, signer crypto.Signer) (string, error)
	SetAttribute(ctx context.Context, id, name string, value []byte, validity uint64, signer crypto.Signer) (string, error)
	RevokeAttribute(ctx context.Context, id, name string, value []byte, signer crypto.Signer) (string, error)
}

// Delegate is a live delegate entry.
type Delegate struct {
	Type    string
	Address string
	ValidTo uint64
}

var (
	_ Reader       = (*Resolver)(nil)
	_ Writer       = (*Resolver)(nil)
	_ did.Resolver = (*LocalResolver)(nil)
)
