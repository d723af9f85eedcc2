// Package did provides utilities for parsing and normalizing the identifiers
// understood by this toolkit. Supports did:ethr (registry-tracked Ethereum
// addresses) and did:uport (legacy MNID identifiers).
package did

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors returned by this package.
var (
	ErrInvalidDID        = errors.New("invalid DID format")
	ErrUnsupportedMethod = errors.New("unsupported DID method (only did:ethr and did:uport supported)")
	ErrInvalidAddress    = errors.New("invalid Ethereum address in DID")
	ErrInvalidMNID       = errors.New("invalid MNID")
)

// Method names.
const (
	MethodEthr  = "ethr"
	MethodUport = "uport"
)

var (
	prefixedHexAddress = regexp.MustCompile(`^0[xX][0-9a-fA-F]{40}$`)
	bareHexAddress     = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
)

// KeyModel says how an identity's signing key is established, and therefore
// which token algorithm speaks for it.
type KeyModel int

const (
	// KeyModelRecoverable identities are addresses; the signer is proven by
	// recovering the key from the signature.
	KeyModelRecoverable KeyModel = iota

	// KeyModelFixed identities publish their public keys; signatures are
	// checked against that fixed key set.
	KeyModelFixed
)

func (m KeyModel) String() string {
	switch m {
	case KeyModelFixed:
		return "fixed"
	case KeyModelRecoverable:
		return "recoverable"
	default:
		return fmt.Sprintf("KeyModel(%d)", int(m))
	}
}

// Identifier is a normalized identifier together with its key model.
type Identifier struct {
	DID      string
	KeyModel KeyModel
}

// Identify normalizes id and decides its key model once.
func Identify(id string) Identifier {
	normalized := Normalize(id)
	model := KeyModelRecoverable
	if strings.HasPrefix(normalized, "did:"+MethodUport+":") {
		model = KeyModelFixed
	}
	return Identifier{DID: normalized, KeyModel: model}
}

func (i Identifier) String() string {
	return i.DID
}

// Normalize maps the known notations of an identity reference onto a
// canonical DID. It is total and idempotent:
//   - strings already starting with "did:" are returned unchanged
//   - 0x-prefixed or bare 40-hex addresses become did:ethr:0x<hex>
//   - valid MNIDs become did:uport:<mnid>
//   - anything else is returned unchanged
func Normalize(id string) string {
	switch {
	case strings.HasPrefix(id, "did:"):
		return id
	case prefixedHexAddress.MatchString(id):
		return "did:" + MethodEthr + ":0x" + id[2:]
	case bareHexAddress.MatchString(id):
		return "did:" + MethodEthr + ":0x" + id
	case IsMNID(id):
		return "did:" + MethodUport + ":" + id
	default:
		return id
	}
}

// DID represents a parsed did:ethr or did:uport identifier.
//
// For did:ethr:  did:ethr[:<network>]:0x<address>
// For did:uport: did:uport:<mnid>
type DID struct {
	// Method is the DID method ("ethr" or "uport").
	Method string

	// Network is the network name for did:ethr (empty means mainnet) or the
	// 0x-prefixed network id carried by an MNID.
	Network string

	// Address is the identity address.
	Address common.Address

	// Fragment is the part after '#', without the '#'.
	Fragment string

	// Raw is the original DID string.
	Raw string
}

// Parse parses a DID identifier into its components. The input is
// normalized first, so raw addresses and MNIDs are accepted too.
//
// Examples:
//   - did:ethr:0xf3beac30c498d9e26865f34fcaa57dbb935b0d74
//   - did:ethr:rinkeby:0xf3beac30c498d9e26865f34fcaa57dbb935b0d74#owner
//   - did:uport:2nQtiQG6Cgm1GYTBaaKAgr76uY7iSexUkqX
func Parse(id string) (*DID, error) {
	if id == "" {
		return nil, ErrInvalidDID
	}
	raw := Normalize(id)

	body, fragment, _ := strings.Cut(raw, "#")
	parts := strings.Split(body, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 parts, got %d", ErrInvalidDID, len(parts))
	}
	if parts[0] != "did" {
		return nil, fmt.Errorf("%w: must start with 'did:'", ErrInvalidDID)
	}

	var (
		parsed *DID
		err    error
	)
	switch parts[1] {
	case MethodEthr:
		parsed, err = parseEthrDID(parts)
	case MethodUport:
		parsed, err = parseUportDID(parts)
	default:
		return nil, fmt.Errorf("%w: got did:%s", ErrUnsupportedMethod, parts[1])
	}
	if err != nil {
		return nil, err
	}
	parsed.Fragment = fragment
	parsed.Raw = raw
	return parsed, nil
}

// parseEthrDID parses did:ethr[:network]:0x<address>.
func parseEthrDID(parts []string) (*DID, error) {
	if len(parts) > 4 {
		return nil, fmt.Errorf("%w: did:ethr has at most 4 parts", ErrInvalidDID)
	}
	addr := parts[len(parts)-1]
	if !prefixedHexAddress.MatchString(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	network := ""
	if len(parts) == 4 {
		network = parts[2]
		if network == "" {
			return nil, fmt.Errorf("%w: empty network", ErrInvalidDID)
		}
	}
	return &DID{
		Method:  MethodEthr,
		Network: network,
		Address: common.HexToAddress(addr),
	}, nil
}

// parseUportDID parses did:uport:<mnid>.
func parseUportDID(parts []string) (*DID, error) {
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: did:uport must have exactly 3 parts", ErrInvalidDID)
	}
	network, address, err := DecodeMNID(parts[2])
	if err != nil {
		return nil, err
	}
	return &DID{
		Method:  MethodUport,
		Network: network,
		Address: address,
	}, nil
}

// String returns the canonical DID string.
func (d *DID) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	var s string
	switch d.Method {
	case MethodUport:
		mnid, err := EncodeMNID(d.Network, d.Address)
		if err != nil {
			return ""
		}
		s = "did:" + MethodUport + ":" + mnid
	default:
		s = "did:" + MethodEthr + ":"
		if d.Network != "" {
			s += d.Network + ":"
		}
		s += strings.ToLower(d.Address.Hex())
	}
	if d.Fragment != "" {
		s += "#" + d.Fragment
	}
	return s
}

// AddressHex returns the identity address as lowercase 0x hex.
func (d *DID) AddressHex() string {
	return strings.ToLower(d.Address.Hex())
}

// IsEthrDID returns true if this is a did:ethr identifier.
func (d *DID) IsEthrDID() bool {
	return d.Method == MethodEthr
}

// IsUportDID returns true if this is a did:uport identifier.
func (d *DID) IsUportDID() bool {
	return d.Method == MethodUport
}

// NewEthrDID constructs a did:ethr identifier for an address on mainnet.
func NewEthrDID(address common.Address) string {
	return "did:" + MethodEthr + ":" + strings.ToLower(address.Hex())
}
