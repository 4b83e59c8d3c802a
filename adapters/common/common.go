// Package common holds what the transport adapters share: the authorizer
// contract and the JSON failure body.
//
// Concurrency: All exported functions are safe for concurrent use.
package common

import (
	"context"
	"errors"
	"net/http"

	"github.com/keksclan/goBarista/authz"
)

// Authorizer is satisfied by *authz.Verifier.
type Authorizer interface {
	Authorize(ctx context.Context, header, required string) (authz.Claims, error)
}

// ErrorBody is the JSON document returned with every failure.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// FromError maps err to a status and body. Authorization errors keep their
// own status and description; anything else is a 500 without detail.
func FromError(err error) (int, ErrorBody) {
	var ae *authz.Error
	if errors.As(err, &ae) {
		return ae.Status, ErrorBody{Error: ae.Status, Message: ae.Description}
	}
	return http.StatusInternalServerError, ErrorBody{Error: http.StatusInternalServerError, Message: "Server Error"}
}
