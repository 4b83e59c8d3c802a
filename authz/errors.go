package authz

import (
	"fmt"
	"net/http"
)

// Kind is the machine-readable class of an authorization failure.
type Kind string

const (
	KindMissingHeader           Kind = "MISSING_HEADER"
	KindInvalidHeaderFormat     Kind = "INVALID_HEADER_FORMAT"
	KindInvalidHeaderScheme     Kind = "INVALID_HEADER_SCHEME"
	KindMalformedToken          Kind = "MALFORMED_TOKEN"
	KindUnknownSigningKey       Kind = "UNKNOWN_SIGNING_KEY"
	KindInvalidSignature        Kind = "INVALID_SIGNATURE"
	KindTokenExpired            Kind = "TOKEN_EXPIRED"
	KindInvalidClaims           Kind = "INVALID_CLAIMS"
	KindPermissionsClaimMissing Kind = "PERMISSIONS_CLAIM_MISSING"
	KindPermissionDenied        Kind = "PERMISSION_DENIED"
	KindKeyFetchTimeout         Kind = "KEY_FETCH_TIMEOUT"
)

// Error is the single failure type returned by the verifier. Status is the
// HTTP status the failure maps to; Description is safe to show to clients.
type Error struct {
	Status      int
	Kind        Kind
	Description string
	err         error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingHeader           = &Error{Status: http.StatusUnauthorized, Kind: KindMissingHeader, Description: "Authorization header is expected."}
	ErrInvalidHeaderFormat     = &Error{Status: http.StatusUnauthorized, Kind: KindInvalidHeaderFormat, Description: "Authorization header must be bearer token."}
	ErrInvalidHeaderScheme     = &Error{Status: http.StatusUnauthorized, Kind: KindInvalidHeaderScheme, Description: `Authorization header must start with "Bearer".`}
	ErrMalformedToken          = &Error{Status: http.StatusUnauthorized, Kind: KindMalformedToken, Description: "Unable to parse authentication token."}
	ErrUnknownSigningKey       = &Error{Status: http.StatusUnauthorized, Kind: KindUnknownSigningKey, Description: "Unable to find the appropriate key."}
	ErrInvalidSignature        = &Error{Status: http.StatusUnauthorized, Kind: KindInvalidSignature, Description: "Token signature is invalid."}
	ErrTokenExpired            = &Error{Status: http.StatusUnauthorized, Kind: KindTokenExpired, Description: "Token expired."}
	ErrInvalidClaims           = &Error{Status: http.StatusUnauthorized, Kind: KindInvalidClaims, Description: "Incorrect claims. Please, check the audience and issuer."}
	ErrPermissionsClaimMissing = &Error{Status: http.StatusBadRequest, Kind: KindPermissionsClaimMissing, Description: "Permissions not included in JWT."}
	ErrPermissionDenied        = &Error{Status: http.StatusForbidden, Kind: KindPermissionDenied, Description: "Permission not found."}
	ErrKeyFetchTimeout         = &Error{Status: http.StatusServiceUnavailable, Kind: KindKeyFetchTimeout, Description: "Signing keys are temporarily unavailable."}
)

// wrap returns a copy of the sentinel carrying cause for logs.
func wrap(sentinel *Error, cause error) *Error {
	e := *sentinel
	e.err = cause
	return &e
}
