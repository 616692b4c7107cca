package seatlock

import "errors"

// Conflict errors are expected and frequent: the caller decides whether to
// offer another seat or ask the user to retry. None of them are retried
// here.
var (
	// ErrSeatNotFound is returned when the bus or seat number is not in
	// the roster.
	ErrSeatNotFound = errors.New("seat not found")

	// ErrSeatAlreadyHeld is returned when another holder currently has an
	// active hold on the seat.
	ErrSeatAlreadyHeld = errors.New("seat already held")

	// ErrSeatBooked is returned when the seat has been confirmed and can
	// no longer be claimed.
	ErrSeatBooked = errors.New("seat already booked")

	// ErrHoldNotFound is returned by ConfirmBooking when the token does
	// not refer to any active hold.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldExpired is returned by ConfirmBooking when the hold's TTL
	// elapsed before confirmation.
	ErrHoldExpired = errors.New("hold expired")

	// ErrHoldNotOwned is returned by ConfirmBooking when the caller is
	// not the holder that acquired the hold.
	ErrHoldNotOwned = errors.New("hold not owned by caller")
)
