// Package jsonrpc implements the small slice of the Ethereum JSON-RPC API the
// identity resolver needs, on top of a transport.Transport.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/capiscio/didjwt/pkg/transport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// ErrInvalidResponse is returned when the node's reply is not a JSON-RPC
// envelope or its result does not have the expected shape.
var ErrInvalidResponse = errors.New("invalid JSON-RPC response")

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

// Client talks to a single JSON-RPC endpoint.
type Client struct {
	url       string
	transport transport.Transport
	nextID    atomic.Uint64
}

// NewClient creates a client for the node at url.
func NewClient(url string, t transport.Transport) *Client {
	return &Client{url: url, transport: t}
}

// URL returns the endpoint this client posts to.
func (c *Client) URL() string {
	return c.url
}

// Call invokes method with params and decodes the result into out.
// out may be nil when the result is not needed.
func (c *Client) Call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", method)
	}

	raw, err := c.transport.Post(ctx, c.url, body, "")
	if err != nil {
		return errors.Wrapf(err, "%s", method)
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.Wrapf(ErrInvalidResponse, "%s: %v", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return errors.Wrapf(ErrInvalidResponse, "%s: missing result", method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.Wrapf(ErrInvalidResponse, "%s: %v", method, err)
	}
	return nil
}

// CallMsg is the subset of eth_call arguments the resolver uses.
type CallMsg struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

// EthCall runs a read-only contract call against the latest block.
func (c *Client) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.Call(ctx, &result, "eth_call", CallMsg{To: to, Data: data}, "latest"); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransactionCount returns the account nonce at the given block tag.
func (c *Client) GetTransactionCount(ctx context.Context, account common.Address, block string) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, &result, "eth_getTransactionCount", account, block); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// GasPrice returns the node's suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var hash string
	if err := c.Call(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return "", err
	}
	return hash, nil
}

// Receipt is the subset of a transaction receipt the resolver inspects.
type Receipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	Status          hexutil.Uint64 `json:"status"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
}

// GetTransactionReceipt returns the receipt for hash, or nil while the
// transaction is still pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var receipt *Receipt
	if err := c.Call(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Log is an event log entry.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
}

// FilterQuery selects logs from a single contract in a block range.
type FilterQuery struct {
	Address   common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

type filterArg struct {
	Address   common.Address  `json:"address"`
	Topics    [][]common.Hash `json:"topics,omitempty"`
	FromBlock hexutil.Uint64  `json:"fromBlock"`
	ToBlock   hexutil.Uint64  `json:"toBlock"`
}

// GetLogs returns the logs matching q.
func (c *Client) GetLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	var logs []Log
	arg := filterArg{
		Address:   q.Address,
		Topics:    q.Topics,
		FromBlock: hexutil.Uint64(q.FromBlock),
		ToBlock:   hexutil.Uint64(q.ToBlock),
	}
	if err := c.Call(ctx, &logs, "eth_getLogs", arg); err != nil {
		return nil, err
	}
	return logs, nil
}
