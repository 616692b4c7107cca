package model

import (
	"fmt"
	"math"
	"time"
)

// LocationSample is one GPS fix reported for a bus by a single source.
// Only the latest sample per (bus, source) pair is retained; history is
// out of scope for this service.
type LocationSample struct {
	BusID      string
	Source     string
	Lat        float64
	Lng        float64
	AccuracyM  float64
	ObservedAt time.Time
}

// Well-known location sources, in default priority order.
const (
	SourceVehicleHardware = "vehicle-hardware"
	SourceHandheld        = "handheld"
)

// Validate rejects coordinates outside valid latitude/longitude ranges
// and non-finite values.
func (s LocationSample) Validate() error {
	if math.IsNaN(s.Lat) || math.IsInf(s.Lat, 0) || math.IsNaN(s.Lng) || math.IsInf(s.Lng, 0) {
		return fmt.Errorf("non-finite coordinate (%v, %v)", s.Lat, s.Lng)
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", s.Lat)
	}
	if s.Lng < -180 || s.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", s.Lng)
	}
	if s.BusID == "" {
		return fmt.Errorf("bus id is required")
	}
	if s.Source == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// Age returns how old the sample is at the given instant.
func (s LocationSample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}
