package credentials

import (
	"github.com/capiscio/didjwt/pkg/jwt"
)

// Profile is what a disclosure response reveals about its sender.
type Profile struct {
	DID       string          `json:"did"`
	NetworkID string          `json:"networkId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Email     string          `json:"email,omitempty"`
	Verified  []VerifiedClaim `json:"verified,omitempty"`

	// Claims is the full response payload.
	Claims map[string]interface{} `json:"claims"`
}

// VerifiedClaim is a credential embedded in a disclosure response.
type VerifiedClaim struct {
	Token   string                 `json:"token"`
	Issuer  string                 `json:"iss,omitempty"`
	Subject string                 `json:"sub,omitempty"`
	Claim   map[string]interface{} `json:"claim,omitempty"`
}

// ProfileFromPayload maps an already verified response payload onto a
// Profile. Self-asserted attributes come from the "own" namespace.
func ProfileFromPayload(claims *jwt.Claims) *Profile {
	p := &Profile{
		DID:       claims.GetString(jwt.ClaimIssuer),
		NetworkID: claims.GetString("net"),
		Claims:    claims.Map(),
	}
	if v, ok := claims.Get("own"); ok {
		if own, isMap := v.AsMap(); isMap {
			p.Name = own.GetString("name")
			p.Email = own.GetString("email")
		}
	}
	if v, ok := claims.Get("verified"); ok {
		items, _ := v.AsList()
		for _, item := range items {
			if raw, isString := item.AsString(); isString {
				p.Verified = append(p.Verified, decodeVerified(raw))
			}
		}
	}
	return p
}

// decodeVerified reads an embedded credential without checking its
// signature, whatever its algorithm. Unreadable tokens are kept with only
// their raw form.
func decodeVerified(raw string) VerifiedClaim {
	vc := VerifiedClaim{Token: raw}
	tok, err := jwt.Decode(raw)
	if err != nil {
		return vc
	}
	payload := tok.Claims

	vc.Issuer = payload.GetString(jwt.ClaimIssuer)
	vc.Subject = payload.GetString(jwt.ClaimSubject)
	claim := payload.Clone()
	for _, reserved := range []string{
		jwt.ClaimIssuer, jwt.ClaimSubject, jwt.ClaimIssuedAt, jwt.ClaimExpiry,
		jwt.ClaimNotBefore, jwt.ClaimAudience, jwt.ClaimType,
	} {
		claim.Delete(reserved)
	}
	if v, ok := claim.Get("claim"); ok {
		if nested, isMap := v.AsMap(); isMap {
			claim = nested
		}
	}
	vc.Claim = claim.Map()
	return vc
}
