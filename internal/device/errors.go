package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidState is returned when a state payload fails validation.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrWriteFailed is returned when a state write could not be persisted.
	// The in-memory cache is never updated when this error occurs.
	ErrWriteFailed = errors.New("device: write failed")
)
