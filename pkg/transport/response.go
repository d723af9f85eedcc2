package transport

import (
	"errors"
	"net/url"
	"regexp"
)

// Errors returned when interpreting callback URIs.
var (
	ErrUnparseableURI  = errors.New("cannot parse URI")
	ErrUnknownResponse = errors.New("URI does not match known response format")
)

var (
	tokenFragment = regexp.MustCompile(`^.*[&#]*((?:access_token=|verification=|typedDataSig=|personalSig=)([A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+))&*.*$`)
	txFragment    = regexp.MustCompile(`^.*[&#]*(tx=((0x)?[A-Fa-f0-9]{64})).*$`)
	errorFragment = regexp.MustCompile(`^.*[&#]*(error=(.*))&*.*$`)
)

// ResponseKind tells what a callback URI carried.
type ResponseKind int

const (
	// ResponseToken is a signed JWT (disclosure, verification or signature).
	ResponseToken ResponseKind = iota
	// ResponseTxHash is a transaction hash.
	ResponseTxHash
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseToken:
		return "token"
	case ResponseTxHash:
		return "tx"
	default:
		return "unknown"
	}
}

// Response is the payload extracted from a callback URI fragment.
type Response struct {
	Kind  ResponseKind
	Value string
}

// CallbackError is an error reported by the counterparty in the URI fragment.
type CallbackError struct {
	Message string
}

func (e *CallbackError) Error() string {
	return "callback reported error: " + e.Message
}

// ParseRedirectURI extracts a token or transaction hash from the fragment of
// a callback URI such as https://app.example/cb#access_token=<jwt>.
func ParseRedirectURI(uri string) (*Response, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Fragment == "" {
		return nil, ErrUnparseableURI
	}
	fragment := u.Fragment

	if m := errorFragment.FindStringSubmatch(fragment); m != nil {
		return nil, &CallbackError{Message: m[2]}
	}
	if m := tokenFragment.FindStringSubmatch(fragment); m != nil {
		return &Response{Kind: ResponseToken, Value: m[2]}, nil
	}
	if m := txFragment.FindStringSubmatch(fragment); m != nil {
		return &Response{Kind: ResponseTxHash, Value: m[2]}, nil
	}
	return nil, ErrUnknownResponse
}
