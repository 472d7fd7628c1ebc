package sync

import "errors"

// Domain errors for the sync package.
var (
	// ErrMalformedMessage is returned when a protocol message is missing
	// required fields or carries a payload that cannot be parsed.
	ErrMalformedMessage = errors.New("sync: malformed message")

	// ErrUnknownConnection is returned when a connection ID has no session.
	ErrUnknownConnection = errors.New("sync: unknown connection")
)
