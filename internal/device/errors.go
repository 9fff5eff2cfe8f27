package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device fails validation.
	ErrInvalidDevice = errors.New("device: invalid")
)
