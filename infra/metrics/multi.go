package metrics

import (
	coremetrics "github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
)

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSeatTransition forwards the record to all sinks, returning the
// first error encountered.
func (m *MultiSink) RecordSeatTransition(ev coremetrics.SeatTransitionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSeatTransition(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordHoldConflict forwards conflict records.
func (m *MultiSink) RecordHoldConflict(busID, reason string) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.HoldConflictRecorder); ok {
			if err := rec.RecordHoldConflict(busID, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLocationPublish forwards location broadcasts.
func (m *MultiSink) RecordLocationPublish(sample model.LocationSample) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.LocationRecorder); ok {
			if err := rec.RecordLocationPublish(sample); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSampleDrop forwards sample drops.
func (m *MultiSink) RecordSampleDrop(busID, source, reason string) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SampleDropRecorder); ok {
			if err := rec.RecordSampleDrop(busID, source, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAlert forwards alert records.
func (m *MultiSink) RecordAlert(ev model.AlertEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.AlertRecorder); ok {
			if err := rec.RecordAlert(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordChannelCount forwards the channel gauge when supported by the sink.
func (m *MultiSink) RecordChannelCount(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ChannelGaugeRecorder); ok {
			if err := rec.RecordChannelCount(n); err != nil {
				return err
			}
		}
	}
	return nil
}
