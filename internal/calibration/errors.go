package calibration

import "errors"

var (
	// ErrDeviceInactive is returned for devices whose active flag is off.
	ErrDeviceInactive = errors.New("calibration: device inactive")

	// ErrInvalidWeight is returned for negative or non-finite weights.
	ErrInvalidWeight = errors.New("calibration: invalid weight")

	// ErrInvalidStep is returned when an operator names a step outside 0-6.
	ErrInvalidStep = errors.New("calibration: invalid step")

	// ErrPersistence is returned when a decision could not be stored.
	ErrPersistence = errors.New("calibration: persisting decision failed")
)
