package account

import "errors"

// Domain errors for the account package.
var (
	// ErrAccountNotFound is returned when an account ID does not exist.
	ErrAccountNotFound = errors.New("account: not found")

	// ErrAccountExists is returned when creating an account that already exists.
	ErrAccountExists = errors.New("account: already exists")

	// ErrInvalidAccount is returned when account validation fails.
	ErrInvalidAccount = errors.New("account: invalid")
)
