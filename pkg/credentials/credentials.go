// Package credentials builds the signed requests and attestations exchanged
// with identity wallets, and reads the disclosure responses they send back.
package credentials

import (
	"context"
	"time"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/jwt"
)

// DefaultValidity is the lifetime of requests and attestations when the
// caller does not pick one.
const DefaultValidity = 10 * time.Minute

// Option configures Credentials.
type Option func(*Credentials)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Credentials) {
		c.now = now
	}
}

// Credentials issues tokens as one identity and verifies tokens sent to it.
type Credentials struct {
	issuer   *jwt.Issuer
	verifier *jwt.Verifier
	now      func() time.Time
}

// New creates Credentials for the identity id, signing with signer and
// resolving counterparties through resolver.
func New(id string, signer crypto.Signer, resolver did.Resolver, opts ...Option) *Credentials {
	c := &Credentials{
		issuer:   jwt.NewIssuer(id, signer),
		verifier: jwt.NewVerifier(resolver),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.issuer.Now = c.now
	return c
}

// DID returns the normalized identity these credentials act as.
func (c *Credentials) DID() string {
	return c.issuer.ID.DID
}

// Algorithm returns the token algorithm this identity signs with.
func (c *Credentials) Algorithm() jwt.Algorithm {
	return c.issuer.Algorithm()
}

// SignJWT signs claims as this identity. A zero expiresIn omits exp.
func (c *Credentials) SignJWT(ctx context.Context, claims *jwt.Claims, expiresIn time.Duration) (string, error) {
	return c.issuer.Issue(ctx, claims, expiresIn)
}

// CreateDisclosureRequest signs a shareReq asking a wallet for profile data.
func (c *Credentials) CreateDisclosureRequest(ctx context.Context, params DisclosureRequestParams) (string, error) {
	return c.SignJWT(ctx, BuildPayloadForShareReq(params), validity(params.ExpiresIn))
}

// CreatePersonalSignRequest signs a personalSigReq.
func (c *Credentials) CreatePersonalSignRequest(ctx context.Context, params PersonalSignRequestParams) (string, error) {
	return c.SignJWT(ctx, BuildPayloadForPersonalSignReq(params), validity(params.ExpiresIn))
}

// CreateVerifiedClaimRequest signs a verReq.
func (c *Credentials) CreateVerifiedClaimRequest(ctx context.Context, params VerifiedClaimRequestParams) (string, error) {
	return c.SignJWT(ctx, BuildPayloadForVerifiedClaimReq(params), validity(params.ExpiresIn))
}

// CreateVerification signs an attestation about params.Sub.
func (c *Credentials) CreateVerification(ctx context.Context, params VerificationParams) (string, error) {
	return c.SignJWT(ctx, BuildPayloadForVerification(params), validity(params.ExpiresIn))
}

// VerifyDisclosure verifies a disclosure response addressed to this identity
// and returns the profile it carries.
func (c *Credentials) VerifyDisclosure(ctx context.Context, token string) (*Profile, error) {
	tok, err := c.verifier.VerifyWithOptions(ctx, token, jwt.VerifyOptions{
		Audience: c.DID(),
		Now:      c.now,
	})
	if err != nil {
		return nil, err
	}
	return ProfileFromPayload(tok.Claims), nil
}

func validity(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultValidity
	}
	return d
}
