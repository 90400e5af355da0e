package leasekeeper

import (
	"errors"
)

var (
	// ErrInvalidRequest is returned for malformed input such as an empty holder or a negative duration.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when the named resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when the resource is held by someone else, or a write race
	// persisted after the single retry.
	ErrConflict = errors.New("reservation conflict")

	// ErrUnauthorized is returned when someone other than the holder tries to clear a lease.
	ErrUnauthorized = errors.New("only the current holder may clear the reservation")

	// ErrUnavailable wraps any store failure that is not a compare-and-set race.
	ErrUnavailable = errors.New("lease store unavailable")

	// ErrAlreadyExists is returned when creating a resource whose name is taken.
	ErrAlreadyExists = errors.New("resource already exists")
)

// Code maps an error to the stable identifier used at the API boundary.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	default:
		return "unavailable"
	}
}
