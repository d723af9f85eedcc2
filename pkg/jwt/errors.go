package jwt

import (
	"errors"
	"fmt"
)

// Error codes reported by the verifier.
const (
	// ErrCodeMalformed indicates the token is not three well-formed segments.
	ErrCodeMalformed = "JWT_MALFORMED"

	// ErrCodeUnsupportedAlgorithm indicates an alg other than ES256K or ES256K-R.
	ErrCodeUnsupportedAlgorithm = "JWT_UNSUPPORTED_ALGORITHM"

	// ErrCodeSignatureMismatch indicates the signature does not belong to the issuer.
	ErrCodeSignatureMismatch = "JWT_SIGNATURE_MISMATCH"

	// ErrCodeExpired indicates exp <= now.
	ErrCodeExpired = "JWT_EXPIRED"

	// ErrCodeNotYetValid indicates nbf > now.
	ErrCodeNotYetValid = "JWT_NOT_YET_VALID"

	// ErrCodeResolutionFailed indicates the issuer could not be resolved.
	ErrCodeResolutionFailed = "JWT_RESOLUTION_FAILED"

	// ErrCodeAudienceMismatch indicates the verifier is not in the aud claim.
	ErrCodeAudienceMismatch = "JWT_AUDIENCE_MISMATCH"
)

// Error represents a token failure with one of the JWT_* codes.
type Error struct {
	// Code is one of the JWT_* error codes.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a new Error that wraps an underlying error.
func WrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrMalformed            = NewError(ErrCodeMalformed, "token structure is invalid")
	ErrUnsupportedAlgorithm = NewError(ErrCodeUnsupportedAlgorithm, "unsupported signing algorithm")
	ErrSignatureMismatch    = NewError(ErrCodeSignatureMismatch, "signature does not match issuer")
	ErrExpired              = NewError(ErrCodeExpired, "token has expired")
	ErrNotYetValid          = NewError(ErrCodeNotYetValid, "token is not yet valid")
	ErrResolutionFailed     = NewError(ErrCodeResolutionFailed, "issuer resolution failed")
	ErrAudienceMismatch     = NewError(ErrCodeAudienceMismatch, "verifier not in token audience")
)

// AsError checks if err is an Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var jwtErr *Error
	if errors.As(err, &jwtErr) {
		return jwtErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an Error, or returns empty string.
func GetErrorCode(err error) string {
	if jwtErr, ok := AsError(err); ok {
		return jwtErr.Code
	}
	return ""
}
