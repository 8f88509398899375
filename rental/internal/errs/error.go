package errs

import (
	"errors"
)

var (
	// ErrNotFound is returned when a car, reservation or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on duplicate brand/model, username, email or EGN.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyRented is returned when the requested interval conflicts with
	// an outstanding reservation.
	ErrAlreadyRented = errors.New("car is already rented")
	// ErrInvalidInterval is returned when end is not after start.
	ErrInvalidInterval = errors.New("invalid rental interval")
	// ErrInvalidStateTransition is returned on an illegal lifecycle move.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrUnauthorized is returned when a non-admin attempts an admin-only mutation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStoreUnavailable is returned when the store times out or is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")
)
