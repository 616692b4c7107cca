package metrics

import (
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// SeatTransitionEvent records one seat status change and why it happened.
// Reason is one of "hold", "release", "confirm", "expire".
type SeatTransitionEvent struct {
	BusID      string
	SeatNumber int
	Status     model.SeatStatus
	Reason     string
	Time       time.Time
}

// Sink records coordinator events for observability purposes.
type Sink interface {
	RecordSeatTransition(ev SeatTransitionEvent) error
}

// HoldConflictRecorder records rejected hold/confirm attempts by reason.
type HoldConflictRecorder interface {
	RecordHoldConflict(busID, reason string) error
}

// LocationRecorder records each authoritative location publish.
type LocationRecorder interface {
	RecordLocationPublish(s model.LocationSample) error
}

// SampleDropRecorder records ingested samples excluded from arbitration.
// Reason is "invalid" or "stale".
type SampleDropRecorder interface {
	RecordSampleDrop(busID, source, reason string) error
}

// AlertRecorder records each triggered alert.
type AlertRecorder interface {
	RecordAlert(ev model.AlertEvent) error
}

// ChannelGaugeRecorder records the number of live pub/sub channels.
type ChannelGaugeRecorder interface {
	RecordChannelCount(n int) error
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) RecordSeatTransition(SeatTransitionEvent) error { return nil }
