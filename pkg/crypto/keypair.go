package crypto

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer is the key-storage capability the token codec and resolver sign
// through. Implementations may live on a device or behind a remote service.
type Signer interface {
	// SignHash signs a 32-byte digest and returns the signature with its
	// recovery id.
	SignHash(ctx context.Context, hash []byte) (Signature, error)

	// Address returns the signer's Ethereum address as lowercase 0x hex.
	Address() string
}

// KeyPair is an in-process Signer holding a secp256k1 secret key.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *PublicKey
}

// NewKeyPair parses a hex secret key, with or without 0x prefix. Short keys
// are left-padded with zeros.
func NewKeyPair(privateKeyHex string) (*KeyPair, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")
	if len(h) == 0 || len(h) > 2*scalarSize {
		return nil, fmt.Errorf("%w: bad length", ErrInvalidPrivateKey)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return NewKeyPairFromBytes(raw)
}

// NewKeyPairFromBytes builds a KeyPair from a big-endian secret scalar.
func NewKeyPairFromBytes(raw []byte) (*KeyPair, error) {
	if !inScalarRange(new(big.Int).SetBytes(raw)) {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeyPair{priv: priv, pub: &PublicKey{key: priv.PubKey()}}, nil
}

// GenerateKeyPair creates a fresh random key.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeyPair{priv: priv, pub: &PublicKey{key: priv.PubKey()}}, nil
}

// PublicKey returns the key pair's public half.
func (k *KeyPair) PublicKey() *PublicKey {
	return k.pub
}

// Address implements Signer.
func (k *KeyPair) Address() string {
	return k.pub.Address()
}

// PrivateKeyHex returns the secret scalar as 64 hex characters.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// SignHash implements Signer with deterministic RFC6979 low-s signatures.
func (k *KeyPair) SignHash(_ context.Context, hash []byte) (Signature, error) {
	if len(hash) != scalarSize {
		return Signature{}, ErrInvalidHash
	}
	compact := ecdsa.SignCompact(k.priv, hash, false)
	return Signature{
		R:          new(big.Int).SetBytes(compact[1 : 1+scalarSize]),
		S:          new(big.Int).SetBytes(compact[1+scalarSize:]),
		RecoveryID: int(compact[0]) - HeaderMin,
	}, nil
}
