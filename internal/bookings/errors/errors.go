package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrInvalidTransition = errors.New("invalid booking state transition")

	ErrInvalidTimeRange = errors.New("end time must be after start time")
)
