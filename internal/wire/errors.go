package wire

import "errors"

var (
	// ErrMalformed is returned when a firmware request cannot be decoded.
	ErrMalformed = errors.New("wire: malformed request")

	// ErrMissingField is returned when a required key is absent.
	ErrMissingField = errors.New("wire: missing field")
)
