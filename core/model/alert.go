package model

import (
	"fmt"
	"time"
)

// AlertType defines the kind of safety event raised for a bus.
type AlertType int

const (
	AlertSOS AlertType = iota
	AlertBreakdown
)

// String returns a human-readable representation of the alert type.
func (t AlertType) String() string {
	switch t {
	case AlertSOS:
		return "sos"
	case AlertBreakdown:
		return "breakdown"
	default:
		return "unknown"
	}
}

// ParseAlertType maps a wire name to an AlertType.
func ParseAlertType(s string) (AlertType, bool) {
	switch s {
	case "sos":
		return AlertSOS, true
	case "breakdown":
		return AlertBreakdown, true
	}
	return 0, false
}

// MarshalJSON encodes the type by its wire name.
func (t AlertType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes the wire name.
func (t *AlertType) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("alert type must be a string, got %s", b)
	}
	parsed, ok := ParseAlertType(string(b[1 : len(b)-1]))
	if !ok {
		return fmt.Errorf("unknown alert type %s", b)
	}
	*t = parsed
	return nil
}

// AlertEvent is an immutable safety event. ID is the dedup key for every
// receiver: delivery is at-least-once and clients must treat a repeated
// ID as a no-op.
type AlertEvent struct {
	ID        string            `json:"id"`
	Type      AlertType         `json:"type"`
	BusID     string            `json:"bus_id"`
	OriginID  string            `json:"origin_id"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
