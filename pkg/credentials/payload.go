package credentials

import (
	"time"

	"github.com/capiscio/didjwt/pkg/jwt"
)

// Request type tags carried in the "type" claim.
const (
	TypeShareRequest         = "shareReq"
	TypeShareResponse        = "shareResp"
	TypePersonalSignRequest  = "personalSigReq"
	TypeVerifiedClaimRequest = "verReq"
)

// AccountType is the kind of account a disclosure request asks the wallet
// to answer with.
type AccountType string

// Account types understood by wallets.
const (
	AccountGeneral    AccountType = "general"
	AccountSegregated AccountType = "segregated"
	AccountKeypair    AccountType = "keypair"
	AccountNone       AccountType = "none"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountGeneral, AccountSegregated, AccountKeypair, AccountNone:
		return true
	}
	return false
}

// DisclosureRequestParams describes a selective disclosure request.
type DisclosureRequestParams struct {
	// Requested lists the self-asserted fields asked for.
	Requested []string

	// Verified lists the attested fields asked for.
	Verified []string

	// Callback is where the wallet posts the response.
	Callback string

	// NetworkID is the 0x-prefixed chain id the response account lives on.
	NetworkID string

	// AccountType selects the account the wallet answers with.
	AccountType AccountType

	// Notifications asks for permission to push notifications.
	Notifications bool

	// VC are credentials the requester presents about itself.
	VC []string

	// Extras are merged in first; reserved fields overwrite them.
	Extras *jwt.Claims

	// ExpiresIn defaults to DefaultValidity.
	ExpiresIn time.Duration
}

// PersonalSignRequestParams asks a wallet to sign an arbitrary message.
type PersonalSignRequestParams struct {
	Data      string
	Callback  string
	Riss      string
	From      string
	NetworkID string
	VC        []string
	Extras    *jwt.Claims
	ExpiresIn time.Duration
}

// VerifiedClaimRequestParams asks a wallet to sign a claim about a subject.
type VerifiedClaimRequestParams struct {
	// UnsignedClaim is the claim the signer is asked to attest.
	UnsignedClaim *jwt.Claims

	Callback string

	// Riss is the identity that should sign the claim.
	Riss string

	Aud string
	Sub string

	// IssuerClaims describes the requesting app (issc).
	IssuerClaims *jwt.Claims

	// RequestedExpiry is the expiry, in unix seconds, wanted on the signed
	// claim. Zero omits it.
	RequestedExpiry int64

	VC        []string
	Extras    *jwt.Claims
	ExpiresIn time.Duration
}

// VerificationParams describes an attestation issued by this identity.
type VerificationParams struct {
	Sub       string
	Claim     *jwt.Claims
	Callback  string
	VC        []string
	ExpiresIn time.Duration
}

func base(extras *jwt.Claims) *jwt.Claims {
	if extras == nil {
		return jwt.NewClaims()
	}
	return extras.Clone()
}

func setIf(payload *jwt.Claims, key, value string) {
	if value != "" {
		payload.Set(key, jwt.String(value))
	}
}

// BuildPayloadForShareReq shapes a shareReq payload.
func BuildPayloadForShareReq(params DisclosureRequestParams) *jwt.Claims {
	payload := base(params.Extras)
	payload.Set("requested", jwt.Strings(params.Requested))
	payload.Set("verified", jwt.Strings(params.Verified))
	if params.Notifications {
		payload.Set("permissions", jwt.Strings([]string{"notifications"}))
	}
	payload.Set("callback", jwt.String(params.Callback))
	setIf(payload, "net", params.NetworkID)
	setIf(payload, "act", string(params.AccountType))
	payload.Set("vc", jwt.Strings(params.VC))
	payload.Set(jwt.ClaimType, jwt.String(TypeShareRequest))
	return payload
}

// BuildPayloadForPersonalSignReq shapes a personalSigReq payload.
func BuildPayloadForPersonalSignReq(params PersonalSignRequestParams) *jwt.Claims {
	payload := base(params.Extras)
	payload.Set("data", jwt.String(params.Data))
	payload.Set("callback", jwt.String(params.Callback))
	setIf(payload, "riss", params.Riss)
	setIf(payload, "from", params.From)
	setIf(payload, "net", params.NetworkID)
	payload.Set("vc", jwt.Strings(params.VC))
	payload.Set(jwt.ClaimType, jwt.String(TypePersonalSignRequest))
	return payload
}

// BuildPayloadForVerifiedClaimReq shapes a verReq payload.
func BuildPayloadForVerifiedClaimReq(params VerifiedClaimRequestParams) *jwt.Claims {
	payload := base(params.Extras)
	payload.Set("unsignedClaim", jwt.Map(params.UnsignedClaim))
	payload.Set("callback", jwt.String(params.Callback))
	setIf(payload, "riss", params.Riss)
	setIf(payload, jwt.ClaimAudience, params.Aud)
	setIf(payload, jwt.ClaimSubject, params.Sub)
	if params.IssuerClaims != nil {
		payload.Set("issc", jwt.Map(params.IssuerClaims))
	}
	if params.RequestedExpiry > 0 {
		payload.Set("rexp", jwt.Int(params.RequestedExpiry))
	}
	payload.Set("vc", jwt.Strings(params.VC))
	payload.Set(jwt.ClaimType, jwt.String(TypeVerifiedClaimRequest))
	return payload
}

// BuildPayloadForVerification shapes an attestation payload.
func BuildPayloadForVerification(params VerificationParams) *jwt.Claims {
	return jwt.NewClaims().
		Set(jwt.ClaimSubject, jwt.String(params.Sub)).
		Set("claim", jwt.Map(params.Claim)).
		Set("vc", jwt.Strings(params.VC)).
		Set("callback", jwt.String(params.Callback))
}
