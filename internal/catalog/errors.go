package catalog

import "errors"

// Domain errors for the catalog package.
var (
	// ErrEntryNotFound is returned when a catalog entry does not exist.
	ErrEntryNotFound = errors.New("catalog: entry not found")

	// ErrInvalidEntry is returned when catalog entry validation fails.
	ErrInvalidEntry = errors.New("catalog: invalid entry")
)
