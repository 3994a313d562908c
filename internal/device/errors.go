package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // reply with the unknown-device payload
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given serial number.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose serial number is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidSerial is returned when a serial number is empty or malformed.
	ErrInvalidSerial = errors.New("device: invalid serial number")
)
