package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABI is the part of the ERC-1056 EthereumDIDRegistry interface the
// resolver reads and writes.
const registryABI = `[
{"type":"function","name":"identityOwner","stateMutability":"view","inputs":[{"name":"identity","type":"address"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"owners","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"changed","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"validDelegate","stateMutability":"view","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"changeOwner","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"newOwner","type":"address"}],"outputs":[]},
{"type":"function","name":"addDelegate","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"},{"name":"validity","type":"uint256"}],"outputs":[]},
{"type":"function","name":"revokeDelegate","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"}],"outputs":[]},
{"type":"function","name":"setAttribute","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"},{"name":"validity","type":"uint256"}],"outputs":[]},
{"type":"function","name":"revokeAttribute","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"}],"outputs":[]},
{"type":"event","name":"DIDOwnerChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"owner","type":"address"},{"indexed":false,"name":"previousChange","type":"uint256"}]},
{"type":"event","name":"DIDDelegateChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"delegateType","type":"bytes32"},{"indexed":false,"name":"delegate","type":"address"},{"indexed":false,"name":"validTo","type":"uint256"},{"indexed":false,"name":"previousChange","type":"uint256"}]},
{"type":"event","name":"DIDAttributeChanged","anonymous":false,"inputs":[{"indexed":true,"name":"identity","type":"address"},{"indexed":false,"name":"name","type":"bytes32"},{"indexed":false,"name":"value","type":"bytes"},{"indexed":false,"name":"validTo","type":"uint256"},{"indexed":false,"name":"previousChange","type":"uint256"}]}
]`

// Event names.
const (
	eventOwnerChanged     = "DIDOwnerChanged"
	eventDelegateChanged  = "DIDDelegateChanged"
	eventAttributeChanged = "DIDAttributeChanged"
)

var contractABI = mustParseABI(registryABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("registry: invalid ABI: %v", err))
	}
	return parsed
}

// toBytes32 right-pads s into a bytes32 the way the registry stores
// delegate types and attribute names.
func toBytes32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > len(out) {
		return out, fmt.Errorf("%q is longer than 32 bytes", s)
	}
	copy(out[:], s)
	return out, nil
}

func fromBytes32(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}
