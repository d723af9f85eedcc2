package did

import (
	"context"
	"strings"

	"github.com/capiscio/didjwt/pkg/crypto"
)

// Document is the resolved state of an identity at a point in time.
type Document struct {
	// ID is the canonical DID.
	ID string

	// Owner is the controlling address as lowercase 0x hex.
	Owner string

	// Delegates are addresses currently allowed to sign for the identity.
	Delegates []string

	// PublicKeys are the keys published for the identity.
	PublicKeys []*crypto.PublicKey
}

// IsAuthorized reports whether address is the owner or a live delegate.
func (d *Document) IsAuthorized(address string) bool {
	if strings.EqualFold(d.Owner, address) {
		return true
	}
	for _, delegate := range d.Delegates {
		if strings.EqualFold(delegate, address) {
			return true
		}
	}
	return false
}

// Resolver resolves a DID to its current document.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*Document, error)
}
