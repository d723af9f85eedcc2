package jwt_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uportDID   = "did:uport:2nQtiQG6Cgm1GYTBaaKAgr76uY7iSexUkqX"
	fixtureKey = "0x1234"
	// Address of fixtureKey.
	fixtureAddress = "0xcf03dd0a894ef79cb5b601a43c4b25e3ae4c67ed"
)

func fixtureSigner(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.NewKeyPair(fixtureKey)
	require.NoError(t, err)
	return kp
}

func decodeSegment(t *testing.T, token string, i int) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[i])
	require.NoError(t, err)
	return string(raw)
}

func TestAlgorithmSelection(t *testing.T) {
	signer := fixtureSigner(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		issuer  string
		wantAlg jwt.Algorithm
		sigLen  int
	}{
		{"legacy identifier uses fixed key", uportDID, jwt.ES256K, 64},
		{"raw address uses recoverable", fixtureAddress, jwt.ES256KR, 65},
		{"ethr DID uses recoverable", "did:ethr:" + fixtureAddress, jwt.ES256KR, 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewIssuer(tt.issuer, signer).Issue(ctx, jwt.NewClaims(), 0)
			require.NoError(t, err)

			parsed, err := jwt.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlg, parsed.Header.Algorithm)
			assert.Equal(t, jwt.TokenType, parsed.Header.Type)
			assert.Len(t, parsed.Signature, tt.sigLen)
			assert.Equal(t, did.Normalize(tt.issuer), parsed.Issuer())
			assert.False(t, parsed.Claims.Has(jwt.ClaimExpiry))
		})
	}
}

func TestBuild(t *testing.T) {
	now := time.UnixMilli(12345678999)
	claims := jwt.NewClaims().
		Set("iss", jwt.String("spoofed")).
		Set("hello", jwt.String("world"))

	payload := jwt.Build(claims, "did:ethr:"+fixtureAddress, now, 10*time.Minute)

	assert.Equal(t, []string{"iss", "hello", "iat", "exp"}, payload.Keys())
	assert.Equal(t, "did:ethr:"+fixtureAddress, payload.GetString("iss"))
	iat, _ := payload.GetInt("iat")
	exp, _ := payload.GetInt("exp")
	assert.Equal(t, int64(12345678), iat)
	assert.Equal(t, int64(12346278), exp)

	// The caller's claims are untouched.
	assert.Equal(t, "spoofed", claims.GetString("iss"))
	assert.False(t, claims.Has("iat"))
}

func TestSign_HeaderBytes(t *testing.T) {
	token, err := jwt.Sign(context.Background(), jwt.NewClaims(), jwt.ES256K, fixtureSigner(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "eyJ0eXAiOiJKV1QiLCJhbGciOiJFUzI1NksifQ."))
	assert.Equal(t, `{}`, decodeSegment(t, token, 1))

	_, err = jwt.Sign(context.Background(), jwt.NewClaims(), "HS256", fixtureSigner(t))
	assert.ErrorIs(t, err, jwt.ErrUnsupportedAlgorithm)
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := jwt.Sign(context.Background(), jwt.NewClaims().Set("a", jwt.Int(1)), jwt.ES256KR, fixtureSigner(t))
	require.NoError(t, err)
	parts := strings.Split(valid, ".")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two parts", parts[0] + "." + parts[1]},
		{"four parts", valid + ".extra"},
		{"bad header base64", "!!!." + parts[1] + "." + parts[2]},
		{"header not JSON", base64.RawURLEncoding.EncodeToString([]byte("nope")) + "." + parts[1] + "." + parts[2]},
		{"header without alg", base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`)) + "." + parts[1] + "." + parts[2]},
		{"payload not an object", parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`[1]`)) + "." + parts[2]},
		{"padded signature", parts[0] + "." + parts[1] + "." + parts[2] + "=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwt.Decode(tt.token)
			assert.ErrorIs(t, err, jwt.ErrMalformed)
			assert.Equal(t, jwt.ErrCodeMalformed, jwt.GetErrorCode(err))
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	claims := jwt.NewClaims().
		Set("requested", jwt.Strings([]string{"name", "email"})).
		Set("own", jwt.Map(jwt.NewClaims().Set("name", jwt.String("Ada")))).
		Set("unknownField", jwt.Bool(true))

	token, err := jwt.Sign(context.Background(), claims, jwt.ES256KR, fixtureSigner(t))
	require.NoError(t, err)

	parsed, err := jwt.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, claims.Keys(), parsed.Claims.Keys())
	assert.Equal(t, claims.Map(), parsed.Claims.Map())
	assert.Equal(t, token, parsed.Raw)
	assert.Equal(t, strings.Join(strings.Split(token, ".")[:2], "."), parsed.SigningInput)
}
