package did

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// mnidVersion is the only MNID encoding version in use.
const mnidVersion = 0x01

const mnidChecksumSize = 4

// EncodeMNID builds a multi-network identifier:
// base58(version || network id || address || sha3-256(...)[:4]).
// network is a hex network id such as "0x1" or "0x94365e3a".
func EncodeMNID(network string, address common.Address) (string, error) {
	netBytes, err := networkBytes(network)
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, 1+len(netBytes)+common.AddressLength+mnidChecksumSize)
	payload = append(payload, mnidVersion)
	payload = append(payload, netBytes...)
	payload = append(payload, address.Bytes()...)
	sum := sha3.Sum256(payload)
	payload = append(payload, sum[:mnidChecksumSize]...)
	return base58.Encode(payload), nil
}

// DecodeMNID splits an MNID into its 0x-prefixed network id and address.
func DecodeMNID(mnid string) (network string, address common.Address, err error) {
	raw, err := base58.Decode(mnid)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("%w: %v", ErrInvalidMNID, err)
	}
	if len(raw) < 1+1+common.AddressLength+mnidChecksumSize {
		return "", common.Address{}, fmt.Errorf("%w: too short", ErrInvalidMNID)
	}
	if raw[0] != mnidVersion {
		return "", common.Address{}, fmt.Errorf("%w: unknown version %d", ErrInvalidMNID, raw[0])
	}
	body := raw[:len(raw)-mnidChecksumSize]
	sum := sha3.Sum256(body)
	if !bytes.Equal(sum[:mnidChecksumSize], raw[len(raw)-mnidChecksumSize:]) {
		return "", common.Address{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidMNID)
	}
	netBytes := body[1 : len(body)-common.AddressLength]
	address = common.BytesToAddress(body[len(body)-common.AddressLength:])
	return "0x" + hex.EncodeToString(netBytes), address, nil
}

// IsMNID reports whether s decodes as a well-formed MNID.
func IsMNID(s string) bool {
	_, _, err := DecodeMNID(s)
	return err == nil
}

// networkBytes turns "0x1" into {0x01}, keeping at least one byte.
func networkBytes(network string) ([]byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(network, "0x"), "0X")
	if h == "" {
		return nil, fmt.Errorf("%w: empty network id", ErrInvalidMNID)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: network id %q: %v", ErrInvalidMNID, network, err)
	}
	return b, nil
}
