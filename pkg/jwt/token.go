// Package jwt builds, signs, parses and verifies compact JWTs signed with
// secp256k1, in the two flavours used by decentralized identifiers:
// ES256K (signature checked against published keys) and ES256K-R
// (signer recovered from the signature and matched to the identity).
package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
)

// Algorithm is the JOSE alg header value.
type Algorithm string

// Supported algorithms.
const (
	// ES256K signs with a fixed, published key.
	ES256K Algorithm = "ES256K"

	// ES256KR carries a recovery id so the verifier can derive the signer.
	ES256KR Algorithm = "ES256K-R"
)

// TokenType is the typ header value.
const TokenType = "JWT"

// Registered claim names.
const (
	ClaimIssuer    = "iss"
	ClaimIssuedAt  = "iat"
	ClaimExpiry    = "exp"
	ClaimNotBefore = "nbf"
	ClaimAudience  = "aud"
	ClaimSubject   = "sub"
	ClaimType      = "type"
)

// Segments must be canonical: unused trailing bits in the last character are
// rejected so that no two distinct tokens decode to the same bytes.
var encoding = base64.RawURLEncoding.Strict()

// AlgorithmFor returns the algorithm an identity with the given key model
// signs with.
func AlgorithmFor(model did.KeyModel) Algorithm {
	if model == did.KeyModelFixed {
		return ES256K
	}
	return ES256KR
}

// Header is the JOSE header. Field order is the wire order.
type Header struct {
	Type      string    `json:"typ"`
	Algorithm Algorithm `json:"alg"`
}

// Token is a decoded compact JWT.
type Token struct {
	Header    Header
	Claims    *Claims
	Signature []byte

	// SigningInput is the "header.payload" part the signature covers.
	SigningInput string

	// Raw is the full compact serialization.
	Raw string
}

// Issuer returns the iss claim.
func (t *Token) Issuer() string {
	return t.Claims.GetString(ClaimIssuer)
}

// Build merges the registered claims into a copy of claims: iat is now in
// whole seconds, exp is iat + expiresIn when expiresIn is positive, and iss
// is issuer. Caller claims come first; the registered ones always win.
func Build(claims *Claims, issuer string, now time.Time, expiresIn time.Duration) *Claims {
	payload := claims.Clone()
	iat := now.Unix()
	payload.Set(ClaimIssuedAt, Int(iat))
	if expiresIn > 0 {
		payload.Set(ClaimExpiry, Int(iat+int64(expiresIn/time.Second)))
	}
	payload.Set(ClaimIssuer, String(issuer))
	return payload
}

// Sign serializes header and payload and signs them with signer.
func Sign(ctx context.Context, payload *Claims, alg Algorithm, signer crypto.Signer) (string, error) {
	if alg != ES256K && alg != ES256KR {
		return "", WrapError(ErrCodeUnsupportedAlgorithm, "cannot sign", fmt.Errorf("alg %q", alg))
	}
	headerJSON, err := json.Marshal(Header{Type: TokenType, Algorithm: alg})
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	payloadJSON, err := payload.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	signingInput := encoding.EncodeToString(headerJSON) + "." + encoding.EncodeToString(payloadJSON)
	sig, err := signer.SignHash(ctx, crypto.Hash([]byte(signingInput)))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	var sigBytes []byte
	if alg == ES256K {
		sigBytes = sig.JOSE()
	} else {
		sigBytes = sig.JOSERecoverable()
	}
	return signingInput + "." + encoding.EncodeToString(sigBytes), nil
}

// Decode parses a compact token without verifying it.
func Decode(token string) (*Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, WrapError(ErrCodeMalformed, "token must have 3 parts", fmt.Errorf("got %d", len(parts)))
	}

	headerJSON, err := encoding.DecodeString(parts[0])
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to decode header", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to unmarshal header", err)
	}
	if header.Algorithm == "" {
		return nil, NewError(ErrCodeMalformed, "header has no alg")
	}

	payloadJSON, err := encoding.DecodeString(parts[1])
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to decode payload", err)
	}
	claims := NewClaims()
	if err := json.Unmarshal(payloadJSON, claims); err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to unmarshal payload", err)
	}

	sig, err := encoding.DecodeString(parts[2])
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to decode signature", err)
	}

	return &Token{
		Header:       header,
		Claims:       claims,
		Signature:    sig,
		SigningInput: parts[0] + "." + parts[1],
		Raw:          token,
	}, nil
}

// Issuer signs tokens on behalf of one identity. The algorithm is fixed
// when the Issuer is created, from the identifier's key model.
type Issuer struct {
	ID     did.Identifier
	Signer crypto.Signer

	// Now overrides the current time (for testing).
	Now func() time.Time
}

// NewIssuer creates an Issuer for the identifier id.
func NewIssuer(id string, signer crypto.Signer) *Issuer {
	return &Issuer{ID: did.Identify(id), Signer: signer, Now: time.Now}
}

// Algorithm returns the algorithm this issuer signs with.
func (i *Issuer) Algorithm() Algorithm {
	return AlgorithmFor(i.ID.KeyModel)
}

// Issue builds and signs a token carrying claims. A zero expiresIn omits exp.
func (i *Issuer) Issue(ctx context.Context, claims *Claims, expiresIn time.Duration) (string, error) {
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	return Sign(ctx, Build(claims, i.ID.DID, now(), expiresIn), i.Algorithm(), i.Signer)
}
