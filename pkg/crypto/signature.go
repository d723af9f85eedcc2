// Package crypto implements the secp256k1 signature engine used by the token
// codec: ECDSA verification, public key recovery from recoverable signatures,
// and an in-process signing backend.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Common errors returned by this package.
var (
	ErrInvalidRecoveryID = errors.New("recovery id must be non-negative")
	ErrInvalidSignature  = errors.New("signature r and s must be in [1, n-1]")
	ErrOutOfField        = errors.New("recovered x coordinate is not in the field")
	ErrInvalidPoint      = errors.New("recovered point is not a valid curve point")
	ErrHeaderOutOfRange  = errors.New("signature header byte must be in [27, 34]")
	ErrInvalidPublicKey  = errors.New("invalid secp256k1 public key")
	ErrInvalidPrivateKey = errors.New("invalid secp256k1 private key")
	ErrInvalidHash       = errors.New("message hash must be 32 bytes")
)

const (
	// HeaderMin is the lowest legacy recovery header byte (27 + recovery id 0).
	HeaderMin = 27
	// HeaderMax is the highest legacy recovery header byte.
	HeaderMax = 34

	scalarSize = 32
)

var (
	curveN = secp256k1.Params().N
	curveP = secp256k1.Params().P
)

// Signature is an ECDSA signature over secp256k1 with an optional recovery id.
type Signature struct {
	R *big.Int
	S *big.Int

	// RecoveryID selects the candidate public key during recovery.
	// It is 0 or 1 for signatures produced by this package.
	RecoveryID int
}

// CompactSignature is the legacy encoding where the recovery id travels in a
// header byte offset by 27.
type CompactSignature struct {
	Header byte
	R      *big.Int
	S      *big.Int
}

// RecoveryID decodes the header into a 0-based recovery id.
func (c CompactSignature) RecoveryID() (int, error) {
	if c.Header < HeaderMin || c.Header > HeaderMax {
		return 0, fmt.Errorf("%w: got %d", ErrHeaderOutOfRange, c.Header)
	}
	return int(c.Header) - HeaderMin, nil
}

// Compact converts the signature into its legacy header form.
func (s Signature) Compact() CompactSignature {
	return CompactSignature{Header: byte(HeaderMin + s.RecoveryID), R: s.R, S: s.S}
}

// JOSE returns the 64-byte r||s encoding used by ES256K.
func (s Signature) JOSE() []byte {
	out := make([]byte, 2*scalarSize)
	s.R.FillBytes(out[:scalarSize])
	s.S.FillBytes(out[scalarSize:])
	return out
}

// JOSERecoverable returns the 65-byte r||s||v encoding used by ES256K-R,
// where v is the raw recovery id.
func (s Signature) JOSERecoverable() []byte {
	out := make([]byte, 2*scalarSize+1)
	s.R.FillBytes(out[:scalarSize])
	s.S.FillBytes(out[scalarSize : 2*scalarSize])
	out[2*scalarSize] = byte(s.RecoveryID)
	return out
}

// ParseJOSE decodes a 64-byte r||s signature. The recovery id is left at 0.
func ParseJOSE(b []byte) (Signature, error) {
	if len(b) != 2*scalarSize {
		return Signature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, 2*scalarSize, len(b))
	}
	return Signature{
		R: new(big.Int).SetBytes(b[:scalarSize]),
		S: new(big.Int).SetBytes(b[scalarSize:]),
	}, nil
}

// ParseJOSERecoverable decodes a 65-byte r||s||v signature into its compact
// form. A v below 27 is treated as a raw recovery id.
func ParseJOSERecoverable(b []byte) (CompactSignature, error) {
	if len(b) != 2*scalarSize+1 {
		return CompactSignature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, 2*scalarSize+1, len(b))
	}
	v := b[2*scalarSize]
	if v < HeaderMin {
		v += HeaderMin
	}
	return CompactSignature{
		Header: v,
		R:      new(big.Int).SetBytes(b[:scalarSize]),
		S:      new(big.Int).SetBytes(b[scalarSize : 2*scalarSize]),
	}, nil
}

// Hash is the message digest used by both token schemes.
func Hash(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

func inScalarRange(v *big.Int) bool {
	return v != nil && v.Sign() > 0 && v.Cmp(curveN) < 0
}

func toModN(v *big.Int) *secp256k1.ModNScalar {
	var buf [scalarSize]byte
	v.FillBytes(buf[:])
	var s secp256k1.ModNScalar
	s.SetBytes(&buf)
	return &s
}
