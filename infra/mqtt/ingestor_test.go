package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/core/roster"
	"github.com/transitio/fleetcoord/infra/backlog"
	"github.com/transitio/fleetcoord/infra/logger"
)

type mockToken struct{}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return nil }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockClient struct {
	handlers     map[string]paho.MessageHandler
	disconnected bool
}

func (m *mockClient) IsConnected() bool       { return true }
func (m *mockClient) Connect() paho.Token     { return &mockToken{} }
func (m *mockClient) Disconnect(quiesce uint) { m.disconnected = true }
func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = cb
	return &mockToken{}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

type capturingPublisher struct {
	events []events.Event
}

func (p *capturingPublisher) Publish(_ string, ev events.Event) {
	p.events = append(p.events, ev)
}

func newTestIngestor(t *testing.T) (*Ingestor, *capturingPublisher) {
	t.Helper()
	pub := &capturingPublisher{}
	arb, err := location.NewArbiter(location.Config{}, pub, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("arbiter: %v", err)
	}
	r := roster.NewStatic([]model.BusInfo{{ID: "B1", OwnerID: "O1"}})
	disp, err := alerts.NewDispatcher(alerts.Config{}, pub, backlog.NewMemoryBacklog(), r, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	ing := &Ingestor{prefix: "fleet", arbiter: arb, alerts: disp, log: logger.NopLogger{}}
	return ing, pub
}

func TestOnLocationFeedsArbiter(t *testing.T) {
	ing, pub := newTestIngestor(t)
	raw, _ := json.Marshal(locationMessage{Lat: 12.97, Lng: 77.59, AccuracyM: 4, ObservedAt: time.Now().UnixMilli()})
	ing.onLocation(nil, &mockMessage{topic: "fleet/B1/location", payload: raw})

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	lu, ok := pub.events[0].(events.LocationUpdate)
	if !ok || lu.Sample.BusID != "B1" || lu.Sample.Source != model.SourceVehicleHardware {
		t.Fatalf("unexpected event %+v", pub.events[0])
	}
}

func TestOnLocationRejectsGarbage(t *testing.T) {
	ing, pub := newTestIngestor(t)
	ing.onLocation(nil, &mockMessage{topic: "fleet/B1/location", payload: []byte("not json")})
	raw, _ := json.Marshal(locationMessage{Lat: 500, Lng: 0, ObservedAt: time.Now().UnixMilli()})
	ing.onLocation(nil, &mockMessage{topic: "fleet/B1/location", payload: raw})
	if len(pub.events) != 0 {
		t.Fatalf("invalid payloads must not publish, got %d", len(pub.events))
	}
}

func TestOnAlertTriggersDispatcher(t *testing.T) {
	ing, pub := newTestIngestor(t)
	raw, _ := json.Marshal(alertMessage{Type: "breakdown", OriginID: "hw-B1", Payload: map[string]string{"notes": "engine"}})
	ing.onAlert(nil, &mockMessage{topic: "fleet/B1/alert", payload: raw})

	var found bool
	for _, ev := range pub.events {
		if ba, ok := ev.(events.BreakdownAlert); ok {
			found = true
			if ba.Alert.BusID != "B1" || ba.Alert.OriginID != "hw-B1" {
				t.Fatalf("unexpected alert %+v", ba.Alert)
			}
		}
	}
	if !found {
		t.Fatalf("breakdown alert was not published: %+v", pub.events)
	}
}

func TestOnAlertUnknownTypeIgnored(t *testing.T) {
	ing, pub := newTestIngestor(t)
	raw, _ := json.Marshal(alertMessage{Type: "coffee", OriginID: "hw-B1"})
	ing.onAlert(nil, &mockMessage{topic: "fleet/B1/alert", payload: raw})
	if len(pub.events) != 0 {
		t.Fatalf("unknown alert types must be ignored, got %d events", len(pub.events))
	}
}

func TestBusIDFromTopic(t *testing.T) {
	ing := &Ingestor{prefix: "fleet"}
	cases := []struct {
		topic string
		want  string
		ok    bool
	}{
		{"fleet/B1/location", "B1", true},
		{"fleet/B1/alert", "B1", true},
		{"fleet//location", "", false},
		{"other/B1/location", "", false},
		{"fleet/B1", "", false},
	}
	for _, tc := range cases {
		got, ok := ing.busIDFromTopic(tc.topic)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("busIDFromTopic(%q) = %q/%v, want %q/%v", tc.topic, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCloseDisconnects(t *testing.T) {
	mc := &mockClient{}
	ing := &Ingestor{cli: mc, log: logger.NopLogger{}}
	ing.Close()
	if !mc.disconnected {
		t.Fatalf("expected Disconnect() to be called")
	}
}
