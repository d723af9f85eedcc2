package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
)

// VerifyOptions configures token verification.
type VerifyOptions struct {
	// Issuer overrides the iss claim as the identity whose keys are checked.
	Issuer string

	// Audience is the verifier's identity. If set and the token has an aud
	// claim, the verifier must be in it.
	Audience string

	// Now overrides the current time (for testing).
	Now func() time.Time
}

// Verifier authenticates tokens using keys from a did.Resolver.
type Verifier struct {
	resolver did.Resolver
}

// NewVerifier creates a new Verifier.
func NewVerifier(resolver did.Resolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// Verify checks token with default options.
func (v *Verifier) Verify(ctx context.Context, token string) (*Token, error) {
	return v.VerifyWithOptions(ctx, token, VerifyOptions{})
}

// VerifyWithOptions parses token, resolves its issuer, checks the signature
// and then the time and audience claims. It returns the token only when all
// checks pass.
func (v *Verifier) VerifyWithOptions(ctx context.Context, token string, opts VerifyOptions) (*Token, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	t, err := Decode(token)
	if err != nil {
		return nil, err
	}
	if t.Header.Algorithm != ES256K && t.Header.Algorithm != ES256KR {
		return nil, WrapError(ErrCodeUnsupportedAlgorithm, "cannot verify", fmt.Errorf("alg %q", t.Header.Algorithm))
	}

	issuer := opts.Issuer
	if issuer == "" {
		issuer = t.Issuer()
	}
	if issuer == "" {
		return nil, NewError(ErrCodeMalformed, "token has no issuer")
	}

	doc, err := v.resolver.Resolve(ctx, did.Normalize(issuer))
	if err != nil {
		return nil, WrapError(ErrCodeResolutionFailed, fmt.Sprintf("failed to resolve %s", issuer), err)
	}

	if err := verifySignature(t, doc); err != nil {
		return nil, err
	}
	if err := validateClaims(t.Claims, opts, now()); err != nil {
		return nil, err
	}
	return t, nil
}

func verifySignature(t *Token, doc *did.Document) error {
	message := []byte(t.SigningInput)

	switch t.Header.Algorithm {
	case ES256K:
		sig, err := crypto.ParseJOSE(t.Signature)
		if err != nil {
			return WrapError(ErrCodeSignatureMismatch, "bad ES256K signature", err)
		}
		hash := crypto.Hash(message)
		for _, pub := range doc.PublicKeys {
			if crypto.Verify(hash, sig, pub) {
				return nil
			}
		}
		// Identities without published keys sign with their owner or a
		// delegate; try both recovery candidates against those.
		for recoveryID := 0; recoveryID < 2; recoveryID++ {
			pub, err := crypto.RecoverPublicKey(recoveryID, sig, hash)
			if err == nil && doc.IsAuthorized(pub.Address()) {
				return nil
			}
		}
		return WrapError(ErrCodeSignatureMismatch, "no key of "+doc.ID+" matches", nil)

	case ES256KR:
		compact, err := crypto.ParseJOSERecoverable(t.Signature)
		if err != nil {
			return WrapError(ErrCodeSignatureMismatch, "bad ES256K-R signature", err)
		}
		pub, err := crypto.SignedTokenToKey(message, compact)
		if err != nil {
			return WrapError(ErrCodeSignatureMismatch, "public key recovery failed", err)
		}
		if !doc.IsAuthorized(pub.Address()) {
			return WrapError(ErrCodeSignatureMismatch,
				fmt.Sprintf("signer %s is not authorized for %s", pub.Address(), doc.ID), nil)
		}
		return nil
	}
	return NewError(ErrCodeUnsupportedAlgorithm, string(t.Header.Algorithm))
}

func validateClaims(claims *Claims, opts VerifyOptions, now time.Time) error {
	nowUnix := now.Unix()

	if v, ok := claims.Get(ClaimExpiry); ok {
		exp, isInt := v.AsInt()
		if !isInt {
			return NewError(ErrCodeMalformed, "exp is not a number")
		}
		if exp <= nowUnix {
			return ErrExpired
		}
	}
	if v, ok := claims.Get(ClaimNotBefore); ok {
		nbf, isInt := v.AsInt()
		if !isInt {
			return NewError(ErrCodeMalformed, "nbf is not a number")
		}
		if nbf > nowUnix {
			return ErrNotYetValid
		}
	}

	if opts.Audience != "" {
		if err := checkAudience(claims, opts.Audience); err != nil {
			return err
		}
	}
	return nil
}

func checkAudience(claims *Claims, audience string) error {
	v, ok := claims.Get(ClaimAudience)
	if !ok {
		return nil
	}
	want := did.Normalize(audience)
	if s, isString := v.AsString(); isString {
		if did.Normalize(s) == want {
			return nil
		}
		return ErrAudienceMismatch
	}
	if items, isList := v.AsList(); isList {
		for _, item := range items {
			if s, _ := item.AsString(); did.Normalize(s) == want {
				return nil
			}
		}
		return ErrAudienceMismatch
	}
	return NewError(ErrCodeMalformed, "aud must be a string or list")
}
