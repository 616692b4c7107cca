package ws

import (
	"time"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/model"
)

// clientMessage is the single inbound envelope. The action selects which
// of the optional fields matter.
type clientMessage struct {
	Action string `json:"action"`

	// subscribe / unsubscribe
	BusID string `json:"bus_id,omitempty"`

	// location
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	AccuracyM  float64 `json:"accuracy_m,omitempty"`
	ObservedAt int64   `json:"observed_at,omitempty"` // unix millis

	// alert
	Payload map[string]string `json:"payload,omitempty"`
}

// Inbound actions.
const (
	actionJoinBus   = "join:bus"
	actionLeaveBus  = "leave:bus"
	actionJoinUser  = "join:user"
	actionLocation  = "location"
	actionSOS       = "sos"
	actionBreakdown = "breakdown"
)

type seatUpdateMessage struct {
	Type       string    `json:"type"`
	BusID      string    `json:"bus_id"`
	SeatNumber int       `json:"seat_number"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

type locationMessage struct {
	Type       string    `json:"type"`
	BusID      string    `json:"bus_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

type alertMessage struct {
	Type  string           `json:"type"`
	Alert model.AlertEvent `json:"alert"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// encode translates a registry event into its wire message. New event
// variants must be added here; an unknown variant is a programming error
// and is reported so the session can log it.
func encode(ev events.Event) (any, bool) {
	switch e := ev.(type) {
	case events.SeatUpdate:
		return seatUpdateMessage{
			Type:       e.Kind(),
			BusID:      e.BusID,
			SeatNumber: e.SeatNumber,
			Status:     e.Status.String(),
			At:         e.At,
		}, true
	case events.LocationUpdate:
		return locationMessage{
			Type:       e.Kind(),
			BusID:      e.Sample.BusID,
			Lat:        e.Sample.Lat,
			Lng:        e.Sample.Lng,
			AccuracyM:  e.Sample.AccuracyM,
			Source:     e.Sample.Source,
			ObservedAt: e.Sample.ObservedAt,
		}, true
	case events.SosAlert:
		return alertMessage{Type: e.Kind(), Alert: e.Alert}, true
	case events.BreakdownAlert:
		return alertMessage{Type: e.Kind(), Alert: e.Alert}, true
	default:
		return nil, false
	}
}
