package registry

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/capiscio/didjwt/pkg/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultRegistryAddress is where the ERC-1056 registry is deployed on the
// public networks.
const DefaultRegistryAddress = "0xdca7ef03e98e0dc2b855be647c39abe984fcf21b"

// Network describes one Ethereum network the resolver can reach.
type Network struct {
	// Name is the did:ethr network segment, e.g. "mainnet" or "rinkeby".
	Name string

	// ID is the 0x-prefixed network id, as carried by MNIDs.
	ID string

	// RPCURL is the JSON-RPC endpoint.
	RPCURL string

	// Registry is the registry contract address.
	Registry common.Address

	// ChainID enables EIP-155 replay protection when set. Nil signs
	// pre-EIP-155 (Homestead) transactions.
	ChainID *big.Int
}

// Signer returns the transaction signer matching the network's replay rules.
func (n Network) Signer() types.Signer {
	if n.ChainID == nil {
		return types.HomesteadSigner{}
	}
	return types.LatestSignerForChainID(n.ChainID)
}

func (n Network) matches(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.EqualFold(ref, n.Name) {
		return true
	}
	return sameNetworkID(ref, n.ID)
}

// sameNetworkID compares hex ids ignoring leading zeros ("0x01" == "0x1").
func sameNetworkID(a, b string) bool {
	x, okA := parseNetworkID(a)
	y, okB := parseNetworkID(b)
	return okA && okB && x.Cmp(y) == 0
}

func parseNetworkID(s string) (*big.Int, bool) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, false
	}
	return new(big.Int).SetString(s[2:], 16)
}

type networkClient struct {
	Network
	rpc *jsonrpc.Client
}

func (r *Resolver) network(ref string) (*networkClient, error) {
	if ref == "" {
		return r.networks[0], nil
	}
	for _, n := range r.networks {
		if n.matches(ref) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, ref)
}
