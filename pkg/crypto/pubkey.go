package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PublicKey is a secp256k1 curve point.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// ParsePublicKey accepts 33-byte compressed, 64-byte raw (x||y) or 65-byte
// 0x04-prefixed key material.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	if len(b) == 64 {
		prefixed := make([]byte, 65)
		prefixed[0] = 0x04
		copy(prefixed[1:], b)
		b = prefixed
	}
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &PublicKey{key: key}, nil
}

// ParsePublicKeyHex is ParsePublicKey for hex input with optional 0x prefix.
func ParsePublicKeyHex(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(b)
}

// Bytes returns the 65-byte uncompressed encoding.
func (p *PublicKey) Bytes() []byte {
	return p.key.SerializeUncompressed()
}

// Raw returns the 64-byte x||y encoding.
func (p *PublicKey) Raw() []byte {
	return p.key.SerializeUncompressed()[1:]
}

// Hex returns the 0x-prefixed uncompressed encoding.
func (p *PublicKey) Hex() string {
	return "0x" + hex.EncodeToString(p.Bytes())
}

// Address returns the Ethereum address derived from the key, as lowercase
// 0x-prefixed hex.
func (p *PublicKey) Address() string {
	return strings.ToLower(p.EthAddress().Hex())
}

// EthAddress returns the address as a go-ethereum type.
func (p *PublicKey) EthAddress() common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256(p.Raw())[12:])
}

// Equal reports whether both keys are the same point.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key.IsEqual(other.key)
}

func (p *PublicKey) String() string {
	return p.Hex()
}
