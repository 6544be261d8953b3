package errors

import "errors"

var (
	ErrNotFound = errors.New("lot not found")

	ErrInvalidID = errors.New("invalid lot ID format")

	ErrNoCapacity = errors.New("no available slots")

	ErrCapacityBelowActive = errors.New("capacity below active reservations")
)
