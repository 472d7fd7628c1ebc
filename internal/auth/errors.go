package auth

import "errors"

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrMissingToken is returned when a request carries no token at all.
	ErrMissingToken = errors.New("auth: missing token")
)
