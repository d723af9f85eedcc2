package registry_test

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/capiscio/didjwt/pkg/registry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

const (
	registryAddress = "0xdca7ef03e98e0dc2b855be647c39abe984fcf21b"
	identityAddress = "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74"
	identityKey     = "278a5de700e29faae8e40e366ec5012b5ec63d36ec77e8a2417154cc1d25383f"
)

// eventsABI mirrors the registry surface the fake node needs to answer.
const eventsABI = `[
{"type":"function","name":"identityOwner","stateMutability":"view","inputs":[{"name":"identity","type":"address"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"changed","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"DIDOwnerChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"owner","type":"address"},{"indexed":false,"name":"previousChange","type":"uint256"}]},
{"type":"event","name":"DIDDelegateChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"delegateType","type":"bytes32"},{"indexed":false,"name":"delegate","type":"address"},{"indexed":false,"name":"validTo","type":"uint256"},{"indexed":false,"name":"previousChange","type":"uint256"}]},
{"type":"event","name":"DIDAttributeChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"name","type":"bytes32"},{"indexed":false,"name":"value","type":"bytes"},{"indexed":false,"name":"validTo","type":"uint256"},{"indexed":false,"name":"previousChange","type":"uint256"}]}
]`

func parsedABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	require.NoError(t, err)
	return parsed
}

// fakeNode is an in-memory JSON-RPC node implementing transport.Transport.
type fakeNode struct {
	t   *testing.T
	abi abi.ABI

	mu       sync.Mutex
	calls    map[string]string // method name -> eth_call result
	logs     map[uint64][]map[string]interface{}
	nonce    string
	gasPrice string
	receipt  interface{}
	err      error
	rpcError map[string]interface{}

	methods []string
	sent    []string
}

func newFakeNode(t *testing.T) *fakeNode {
	return &fakeNode{
		t:        t,
		abi:      parsedABI(t),
		calls:    map[string]string{},
		logs:     map[uint64][]map[string]interface{}{},
		nonce:    "0x0",
		gasPrice: "0x4a817c800",
	}
}

func (f *fakeNode) Post(ctx context.Context, _ string, body []byte, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}

	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     uint64            `json:"id"`
	}
	require.NoError(f.t, json.Unmarshal(body, &req))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, req.Method)
	if f.rpcError != nil {
		return json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "error": f.rpcError})
	}

	var result interface{}
	switch req.Method {
	case "eth_call":
		var msg struct {
			Data hexutil.Bytes `json:"data"`
		}
		require.NoError(f.t, json.Unmarshal(req.Params[0], &msg))
		// A deployed registry answers a zero word for identities it has
		// never seen; "0x" means there is no contract at all.
		method, err := f.abi.MethodById(msg.Data[:4])
		result = "0x"
		if err == nil {
			result = word("0")
			if r, ok := f.calls[method.Name]; ok {
				result = r
			}
		}
	case "eth_getLogs":
		var q struct {
			FromBlock hexutil.Uint64 `json:"fromBlock"`
		}
		require.NoError(f.t, json.Unmarshal(req.Params[0], &q))
		logs := f.logs[uint64(q.FromBlock)]
		if logs == nil {
			logs = []map[string]interface{}{}
		}
		result = logs
	case "eth_getTransactionCount":
		result = f.nonce
	case "eth_gasPrice":
		result = f.gasPrice
	case "eth_sendRawTransaction":
		var raw string
		require.NoError(f.t, json.Unmarshal(req.Params[0], &raw))
		f.sent = append(f.sent, raw)
		result = "0x" + strings.Repeat("ab", 32)
	case "eth_getTransactionReceipt":
		result = f.receipt
	default:
		f.t.Fatalf("unexpected method %s", req.Method)
	}
	return json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (f *fakeNode) Get(context.Context, string, string) ([]byte, error) {
	f.t.Fatal("GET is not used by the resolver")
	return nil, nil
}

// addLog records an event for identity at block.
func (f *fakeNode) addLog(identity common.Address, block uint64, event string, args ...interface{}) {
	f.t.Helper()
	ev := f.abi.Events[event]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(f.t, err)
	f.logs[block] = append(f.logs[block], map[string]interface{}{
		"address":         registryAddress,
		"topics":          []string{ev.ID.Hex(), common.BytesToHash(identity.Bytes()).Hex()},
		"data":            hexutil.Encode(data),
		"blockNumber":     hexutil.EncodeUint64(block),
		"transactionHash": common.Hash{}.Hex(),
	})
}

func word(hexValue string) string {
	return "0x" + strings.Repeat("0", 64-len(strings.TrimPrefix(hexValue, "0x"))) + strings.TrimPrefix(hexValue, "0x")
}

func bytes32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

func mainnet() []registry.Network {
	return []registry.Network{
		{Name: "mainnet", ID: "0x1", RPCURL: "http://mainnet.node", Registry: common.HexToAddress(registryAddress)},
		{Name: "rinkeby", ID: "0x4", RPCURL: "http://rinkeby.node", Registry: common.HexToAddress(registryAddress), ChainID: big.NewInt(4)},
	}
}
