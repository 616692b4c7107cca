package model

import "time"

// SeatStatus tracks where a seat is in the hold/booking lifecycle.
type SeatStatus int

const (
	SeatAvailable SeatStatus = iota
	SeatHeld
	SeatBooked
)

// String returns a human-readable representation of the seat status.
func (s SeatStatus) String() string {
	switch s {
	case SeatAvailable:
		return "available"
	case SeatHeld:
		return "held"
	case SeatBooked:
		return "booked"
	default:
		return "unknown"
	}
}

// Seat is one physical seat on a bus. Category is informational only
// (priority class, ladies seat, ...) and never affects locking.
type Seat struct {
	BusID    string
	Number   int
	Status   SeatStatus
	Category string
}

// Hold is a time-boxed exclusive claim on a seat prior to booking
// confirmation. The token is the only capability needed to release it;
// confirmation additionally requires the original holder identity.
type Hold struct {
	Token      string
	BusID      string
	SeatNumber int
	HolderID   string
	ExpiresAt  time.Time
}

// Expired reports whether the hold's TTL has elapsed at the given instant.
func (h Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}
