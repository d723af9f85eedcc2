package registry_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/jsonrpc"
	"github.com/capiscio/didjwt/pkg/registry"
	"github.com/capiscio/didjwt/pkg/transport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_600_000_000, 0)

func newResolver(t *testing.T, node *fakeNode) *registry.Resolver {
	t.Helper()
	r, err := registry.NewResolver(node, mainnet(), registry.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return r
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := registry.NewResolver(newFakeNode(t), nil)
	assert.Error(t, err)

	_, err = registry.NewResolver(newFakeNode(t), []registry.Network{{Name: "mainnet"}})
	assert.Error(t, err)
}

func TestLookupOwner(t *testing.T) {
	tests := []struct {
		name   string
		result string
		input  string
		want   string
	}{
		{
			name:   "registry record",
			result: word("1122334455667788990011223344556677889900"),
			input:  "did:ethr:" + identityAddress,
			want:   "0x1122334455667788990011223344556677889900",
		},
		{
			name:   "raw address input",
			result: word("1122334455667788990011223344556677889900"),
			input:  identityAddress,
			want:   "0x1122334455667788990011223344556677889900",
		},
		{
			name:   "zero owner means self-owned",
			result: word("0"),
			input:  "did:ethr:" + identityAddress,
			want:   identityAddress,
		},
		{
			name:   "uport identifier resolves through its MNID network",
			result: word("0"),
			input:  "did:uport:2nQtiQG6Cgm1GYTBaaKAgr76uY7iSexUkqX",
			want:   "0x00521965e7bd230323c423d96c657db5b79d099f",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			node.calls["identityOwner"] = tt.result

			owner, err := newResolver(t, node).LookupOwner(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, owner)
		})
	}
}

func TestLookupOwner_Errors(t *testing.T) {
	t.Run("malformed response", func(t *testing.T) {
		node := newFakeNode(t)
		node.calls["identityOwner"] = "0x1234"
		_, err := newResolver(t, node).LookupOwner(context.Background(), identityAddress)
		assert.ErrorIs(t, err, registry.ErrMalformedResponse)
	})

	t.Run("no contract at the registry address", func(t *testing.T) {
		node := newFakeNode(t)
		node.calls["identityOwner"] = "0x"
		_, err := newResolver(t, node).LookupOwner(context.Background(), identityAddress)
		assert.ErrorIs(t, err, registry.ErrMalformedResponse)
	})

	t.Run("node error object", func(t *testing.T) {
		node := newFakeNode(t)
		node.rpcError = map[string]interface{}{"code": -32005, "message": "rate limited"}
		_, err := newResolver(t, node).LookupOwner(context.Background(), identityAddress)
		assert.ErrorIs(t, err, registry.ErrNetworkUnavailable)

		var rpcErr *jsonrpc.Error
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, -32005, rpcErr.Code)
	})

	t.Run("network down", func(t *testing.T) {
		node := newFakeNode(t)
		node.err = fmt.Errorf("%w: connection refused", transport.ErrNetwork)
		_, err := newResolver(t, node).LookupOwner(context.Background(), identityAddress)
		assert.ErrorIs(t, err, registry.ErrNetworkUnavailable)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newResolver(t, newFakeNode(t)).LookupOwner(ctx, identityAddress)
		assert.ErrorIs(t, err, registry.ErrNetworkUnavailable)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unsupported method", func(t *testing.T) {
		_, err := newResolver(t, newFakeNode(t)).LookupOwner(context.Background(), "did:web:example.com")
		assert.ErrorIs(t, err, registry.ErrUnknownIdentifierMethod)
	})

	t.Run("unknown network", func(t *testing.T) {
		_, err := newResolver(t, newFakeNode(t)).LookupOwner(context.Background(), "did:ethr:kovan:"+identityAddress)
		assert.ErrorIs(t, err, registry.ErrUnknownNetwork)
	})
}

func TestChangeOwner_RawTransaction(t *testing.T) {
	node := newFakeNode(t)
	node.calls["identityOwner"] = word(identityAddress)

	signer, err := crypto.NewKeyPair(identityKey)
	require.NoError(t, err)
	require.Equal(t, identityAddress, signer.Address())

	hash, err := newResolver(t, node).ChangeOwner(context.Background(),
		"did:ethr:"+identityAddress, "0x45c4EBd7Ffb86891BA6f9F68452F9F0815AAcD8b", signer)
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), hash)

	require.Len(t, node.sent, 1)
	assert.Equal(t,
		"0xf8aa808504a817c8008301117094dca7ef03e98e0dc2b855be647c39abe984fcf21b80b844f00d4b5d"+
			"000000000000000000000000f3beac30c498d9e26865f34fcaa57dbb935b0d74"+
			"00000000000000000000000045c4ebd7ffb86891ba6f9f68452f9f0815aacd8b"+
			"1ca0eb687cc4a323d4c3471d01d3a0d3d212754539fa9d2f6973acc0f1de275f53e9"+
			"a0257684845b8d3d5e0c0838c5da007ddc7a0df08722fba53866601821f0aceff4",
		node.sent[0])

	// Nonce and gas price are fetched for this call, not reused.
	assert.Contains(t, node.methods, "eth_getTransactionCount")
	assert.Contains(t, node.methods, "eth_gasPrice")
}

func TestChangeOwner_FetchesNonceEveryCall(t *testing.T) {
	node := newFakeNode(t)
	node.calls["identityOwner"] = word(identityAddress)
	signer, err := crypto.NewKeyPair(identityKey)
	require.NoError(t, err)
	r := newResolver(t, node)

	for i := 0; i < 2; i++ {
		_, err := r.ChangeOwner(context.Background(), identityAddress, "0x45c4ebd7ffb86891ba6f9f68452f9f0815aacd8b", signer)
		require.NoError(t, err)
	}
	count := 0
	for _, m := range node.methods {
		if m == "eth_getTransactionCount" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestChangeOwner_NotOwnerStillTransmits(t *testing.T) {
	node := newFakeNode(t)
	node.calls["identityOwner"] = word("1122334455667788990011223344556677889900")
	signer, err := crypto.NewKeyPair(identityKey)
	require.NoError(t, err)

	_, err = newResolver(t, node).ChangeOwner(context.Background(), identityAddress, "0x45c4ebd7ffb86891ba6f9f68452f9f0815aacd8b", signer)
	require.NoError(t, err)
	assert.Len(t, node.sent, 1)
}

func TestChangeOwner_InvalidNewOwner(t *testing.T) {
	signer, err := crypto.NewKeyPair(identityKey)
	require.NoError(t, err)
	node := newFakeNode(t)

	_, err = newResolver(t, node).ChangeOwner(context.Background(), identityAddress, "not-an-address", signer)
	assert.Error(t, err)
	assert.Empty(t, node.sent)
}

func TestMutations_EIP155Network(t *testing.T) {
	node := newFakeNode(t)
	signer, err := crypto.NewKeyPair(identityKey)
	require.NoError(t, err)
	r := newResolver(t, node)
	ctx := context.Background()
	id := "did:ethr:rinkeby:" + identityAddress

	_, err = r.AddDelegate(ctx, id, registry.DelegateSigAuth, "0x1122334455667788990011223344556677889900", 86400, signer)
	require.NoError(t, err)
	_, err = r.RevokeDelegate(ctx, id, registry.DelegateSigAuth, "0x1122334455667788990011223344556677889900", signer)
	require.NoError(t, err)
	_, err = r.SetAttribute(ctx, id, "did/svc/MessagingService", []byte("https://example.com"), 86400, signer)
	require.NoError(t, err)
	_, err = r.RevokeAttribute(ctx, id, "did/svc/MessagingService", []byte("https://example.com"), signer)
	require.NoError(t, err)

	require.Len(t, node.sent, 4)
	_, err = r.SetAttribute(ctx, id, "this attribute name is far longer than thirty-two bytes", nil, 1, signer)
	assert.Error(t, err)
}

func TestCheckReceipt(t *testing.T) {
	node := newFakeNode(t)
	r := newResolver(t, node)
	ctx := context.Background()

	mined, err := r.CheckReceipt(ctx, "", "0xab")
	require.NoError(t, err)
	assert.False(t, mined)

	node.receipt = map[string]string{"status": "0x1", "blockNumber": "0x10", "gasUsed": "0x5208"}
	mined, err = r.CheckReceipt(ctx, "mainnet", "0xab")
	require.NoError(t, err)
	assert.True(t, mined)

	node.receipt = map[string]string{"status": "0x0", "blockNumber": "0x10", "gasUsed": "0x5208"}
	mined, err = r.CheckReceipt(ctx, "0x1", "0xab")
	assert.True(t, mined)
	assert.ErrorIs(t, err, registry.ErrTransactionReverted)
}

func TestResolve_History(t *testing.T) {
	node := newFakeNode(t)
	identity := common.HexToAddress(identityAddress)
	future := big.NewInt(fixedNow.Unix() + 1000)
	past := big.NewInt(fixedNow.Unix() - 1)
	forever := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	older, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	newer, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	owner := common.HexToAddress("0x45c4ebd7ffb86891ba6f9f68452f9f0815aacd8b")
	sigAuth := common.HexToAddress("0x1122334455667788990011223344556677889900")
	expired := common.HexToAddress("0x9988776655443322110099887766554433221100")

	// Each block's first change links to the previous change block; later
	// changes in the same block link to the block itself.
	node.calls["identityOwner"] = word(owner.Hex())
	node.calls["changed"] = word("14")
	node.addLog(identity, 5, "DIDOwnerChanged", owner, big.NewInt(0))
	node.addLog(identity, 5, "DIDAttributeChanged",
		bytes32("did/pub/Secp256k1/sigAuth/base58"), []byte(base58.Encode(older.PublicKey().Bytes())), forever, big.NewInt(5))
	node.addLog(identity, 10, "DIDDelegateChanged",
		bytes32(registry.DelegateSigAuth), sigAuth, future, big.NewInt(5))
	node.addLog(identity, 10, "DIDDelegateChanged",
		bytes32(registry.DelegateVerificationKey), expired, past, big.NewInt(10))
	node.addLog(identity, 20, "DIDAttributeChanged",
		bytes32("did/pub/Secp256k1/veriKey/hex"), newer.PublicKey().Bytes(), future, big.NewInt(10))

	doc, err := newResolver(t, node).Resolve(context.Background(), "did:ethr:"+identityAddress+"#owner")
	require.NoError(t, err)

	assert.Equal(t, "did:ethr:"+identityAddress, doc.ID)
	assert.Equal(t, "0x45c4ebd7ffb86891ba6f9f68452f9f0815aacd8b", doc.Owner)
	assert.Equal(t, []string{"0x1122334455667788990011223344556677889900"}, doc.Delegates)
	require.Len(t, doc.PublicKeys, 2)
	assert.True(t, doc.PublicKeys[0].Equal(older.PublicKey()))
	assert.True(t, doc.PublicKeys[1].Equal(newer.PublicKey()))
	assert.True(t, doc.IsAuthorized(sigAuth.Hex()))
	assert.False(t, doc.IsAuthorized(expired.Hex()))

	var getLogs int
	for _, m := range node.methods {
		if m == "eth_getLogs" {
			getLogs++
		}
	}
	assert.Equal(t, 3, getLogs, "one query per change block")
}

func TestLookupDelegates_SameBlockChanges(t *testing.T) {
	node := newFakeNode(t)
	identity := common.HexToAddress(identityAddress)
	valid := big.NewInt(fixedNow.Unix() + 60)
	first := common.HexToAddress("0x1111111111111111111111111111111111111111")
	second := common.HexToAddress("0x2222222222222222222222222222222222222222")
	third := common.HexToAddress("0x3333333333333333333333333333333333333333")

	node.calls["changed"] = word("a")
	node.addLog(identity, 5, "DIDDelegateChanged", bytes32(registry.DelegateVerificationKey), first, valid, big.NewInt(0))
	node.addLog(identity, 10, "DIDDelegateChanged", bytes32(registry.DelegateVerificationKey), second, valid, big.NewInt(5))
	node.addLog(identity, 10, "DIDDelegateChanged", bytes32(registry.DelegateSigAuth), third, valid, big.NewInt(10))

	delegates, err := newResolver(t, node).LookupDelegates(context.Background(), identityAddress)
	require.NoError(t, err)
	require.Len(t, delegates, 3)
	assert.Equal(t, strings.ToLower(first.Hex()), delegates[0].Address)
	assert.Equal(t, strings.ToLower(second.Hex()), delegates[1].Address)
	assert.Equal(t, strings.ToLower(third.Hex()), delegates[2].Address)
	assert.Equal(t, registry.DelegateSigAuth, delegates[2].Type)
}

func TestLookupPublicKeys_RevokedAttribute(t *testing.T) {
	node := newFakeNode(t)
	identity := common.HexToAddress(identityAddress)
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	name := bytes32("did/pub/Secp256k1/veriKey")

	node.calls["changed"] = word("9")
	node.addLog(identity, 9, "DIDAttributeChanged", name, kp.PublicKey().Raw(), big.NewInt(0), big.NewInt(3))
	node.addLog(identity, 3, "DIDAttributeChanged", name, kp.PublicKey().Raw(), big.NewInt(fixedNow.Unix()+60), big.NewInt(0))

	keys, err := newResolver(t, node).LookupPublicKeys(context.Background(), identityAddress)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLookupPublicKeys_NoHistory(t *testing.T) {
	keys, err := newResolver(t, newFakeNode(t)).LookupPublicKeys(context.Background(), identityAddress)
	require.NoError(t, err)
	assert.Empty(t, keys)

	delegates, err := newResolver(t, newFakeNode(t)).LookupDelegates(context.Background(), identityAddress)
	require.NoError(t, err)
	assert.Empty(t, delegates)
}

func TestLookupDelegates_MissingChangeBlock(t *testing.T) {
	node := newFakeNode(t)
	identity := common.HexToAddress(identityAddress)
	node.calls["changed"] = word("14")
	node.addLog(identity, 20, "DIDDelegateChanged",
		bytes32(registry.DelegateSigAuth), identity, big.NewInt(fixedNow.Unix()+10), big.NewInt(12))

	_, err := newResolver(t, node).LookupDelegates(context.Background(), identityAddress)
	assert.ErrorIs(t, err, registry.ErrMalformedResponse)
}

func TestLookupPublicKeys_NoContract(t *testing.T) {
	node := newFakeNode(t)
	node.calls["changed"] = "0x"

	_, err := newResolver(t, node).LookupPublicKeys(context.Background(), identityAddress)
	assert.ErrorIs(t, err, registry.ErrMalformedResponse)
}
