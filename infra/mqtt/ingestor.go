package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/infra/logger"
)

// pahoClient is the subset of the Paho client the ingestor uses.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// locationMessage is the wire format vehicle hardware publishes on
// <prefix>/<busId>/location.
type locationMessage struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AccuracyM  float64 `json:"accuracy_m"`
	ObservedAt int64   `json:"observed_at"` // unix millis
}

// alertMessage is the wire format for <prefix>/<busId>/alert.
type alertMessage struct {
	Type     string            `json:"type"`
	OriginID string            `json:"origin_id"`
	Payload  map[string]string `json:"payload"`
}

// Ingestor bridges the vehicle-hardware broker into the coordinator: GPS
// fixes go to the location arbiter, panic/breakdown signals to the alert
// dispatcher.
type Ingestor struct {
	cli     pahoClient
	prefix  string
	qos     byte
	arbiter *location.Arbiter
	alerts  *alerts.Dispatcher
	log     logger.Logger
}

// NewIngestor connects to the broker and subscribes to the fleet topics.
func NewIngestor(cfg Config, arbiter *location.Arbiter, dispatcher *alerts.Dispatcher) (*Ingestor, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_ingestor")
	ing := &Ingestor{
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		arbiter: arbiter,
		alerts:  dispatcher,
		log:     log,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(ing.prefix+"/+/location", ing.qos, ing.onLocation); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe location: %v", token.Error())
		}
		if token := c.Subscribe(ing.prefix+"/+/alert", ing.qos, ing.onAlert); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe alert: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	ing.cli = cli
	return ing, nil
}

// busIDFromTopic extracts the bus id from <prefix>/<busId>/<leaf>.
func (i *Ingestor) busIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, i.prefix+"/")
	if !ok {
		return "", false
	}
	busID, _, ok := strings.Cut(rest, "/")
	if !ok || busID == "" {
		return "", false
	}
	return busID, true
}

func (i *Ingestor) onLocation(_ paho.Client, msg paho.Message) {
	busID, ok := i.busIDFromTopic(msg.Topic())
	if !ok {
		i.log.Warnf("unroutable topic %s", msg.Topic())
		return
	}
	var m locationMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		i.log.Errorf("failed to decode location for %s: %v", busID, err)
		return
	}
	sample := model.LocationSample{
		BusID:      busID,
		Source:     model.SourceVehicleHardware,
		Lat:        m.Lat,
		Lng:        m.Lng,
		AccuracyM:  m.AccuracyM,
		ObservedAt: time.UnixMilli(m.ObservedAt),
	}
	if err := i.arbiter.IngestSample(sample); err != nil {
		// Hardware feeds occasionally glitch; the arbiter already counted
		// the drop, nothing to propagate.
		i.log.Debugf("sample from %s rejected: %v", busID, err)
	}
}

func (i *Ingestor) onAlert(_ paho.Client, msg paho.Message) {
	busID, ok := i.busIDFromTopic(msg.Topic())
	if !ok {
		i.log.Warnf("unroutable topic %s", msg.Topic())
		return
	}
	var m alertMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		i.log.Errorf("failed to decode alert for %s: %v", busID, err)
		return
	}
	typ, ok := model.ParseAlertType(m.Type)
	if !ok {
		i.log.Warnf("unknown alert type %q from %s", m.Type, busID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := i.alerts.TriggerAlert(ctx, typ, busID, m.Payload, m.OriginID); err != nil {
		i.log.Errorf("alert from %s rejected: %v", busID, err)
	}
}

// Close disconnects from the broker.
func (i *Ingestor) Close() {
	if i.cli != nil && i.cli.IsConnected() {
		i.cli.Disconnect(250)
	}
}
