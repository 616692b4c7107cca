package events

import (
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// Event is implemented by every variant that can travel through the
// channel registry.
type Event interface {
	// Kind returns the wire name of the event, e.g. "bus:seat-update".
	Kind() string
}

// SeatUpdate is published whenever a seat transitions between
// available, held and booked.
type SeatUpdate struct {
	BusID      string
	SeatNumber int
	Status     model.SeatStatus
	At         time.Time
}

func (SeatUpdate) Kind() string { return "bus:seat-update" }

// LocationUpdate carries the arbiter's authoritative position for a bus.
type LocationUpdate struct {
	Sample model.LocationSample
}

func (LocationUpdate) Kind() string { return "bus:location" }

// SosAlert wraps an SOS AlertEvent for channel delivery.
type SosAlert struct {
	Alert model.AlertEvent
}

func (SosAlert) Kind() string { return "bus:sos" }

// BreakdownAlert wraps a breakdown AlertEvent for channel delivery.
type BreakdownAlert struct {
	Alert model.AlertEvent
}

func (BreakdownAlert) Kind() string { return "bus:breakdown" }
