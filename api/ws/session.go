package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/internal/channels"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBuffer bounds the per-session outbound queue. A session that
	// falls this far behind starts missing events rather than stalling
	// the registry.
	sendBuffer = 64
)

// conn is the slice of *websocket.Conn the session uses, extracted so
// tests can drive a session without a network socket.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session binds one websocket connection to the channel registry.
// Channel membership is connection-scoped: when the socket goes away,
// every subscription taken through it goes away with it.
type Session struct {
	id     string
	userID string
	conn   conn
	reg    *channels.Registry
	ing    Ingest
	log    logger.Logger

	// send carries events.Event values and pre-encoded error frames.
	// Everything the socket writes funnels through it so the write loop
	// is the connection's only writer.
	send chan any
	done chan struct{}
}

// Ingest is what a session needs from the telemetry side to accept
// device-originated messages.
type Ingest interface {
	IngestSample(s model.LocationSample) error
	TriggerAlert(ctx context.Context, typ model.AlertType, busID string, payload map[string]string, originID string) (model.AlertEvent, error)
}

func newSession(c conn, userID string, reg *channels.Registry, ing Ingest, log logger.Logger) *Session {
	return &Session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   c,
		reg:    reg,
		ing:    ing,
		log:    log,
		send:   make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID identifies the session in the registry.
func (s *Session) ID() string { return s.id }

// Send queues an event for delivery. It never blocks: a full queue
// drops the event and reports false.
func (s *Session) Send(ev events.Event) bool {
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

// run pumps the connection until either side closes it, then tears down
// every channel membership the session acquired.
func (s *Session) run() {
	go s.writeLoop()
	s.readLoop()

	close(s.done)
	s.reg.Drop(s.id)
	_ = s.conn.Close()
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("session %s read error: %v", s.id, err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reject("malformed_message")
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg clientMessage) {
	switch msg.Action {
	case actionJoinBus:
		if msg.BusID == "" {
			s.reject("missing_bus_id")
			return
		}
		s.reg.Subscribe(channels.BusChannel(msg.BusID), s)
	case actionLeaveBus:
		if msg.BusID == "" {
			s.reject("missing_bus_id")
			return
		}
		s.reg.Unsubscribe(channels.BusChannel(msg.BusID), s.id)
	case actionJoinUser:
		// A session may only join the channel of the identity it
		// authenticated as.
		if s.userID == "" {
			s.reject("unauthenticated")
			return
		}
		s.reg.Subscribe(channels.UserChannel(s.userID), s)
	case actionLocation:
		s.ingestLocation(msg)
	case actionSOS, actionBreakdown:
		s.triggerAlert(msg)
	default:
		s.reject("unknown_action")
	}
}

func (s *Session) ingestLocation(msg clientMessage) {
	if msg.BusID == "" {
		s.reject("missing_bus_id")
		return
	}
	sample := model.LocationSample{
		BusID:      msg.BusID,
		Source:     model.SourceHandheld,
		Lat:        msg.Lat,
		Lng:        msg.Lng,
		AccuracyM:  msg.AccuracyM,
		ObservedAt: time.UnixMilli(msg.ObservedAt),
	}
	if msg.ObservedAt == 0 {
		sample.ObservedAt = time.Now()
	}
	if err := s.ing.IngestSample(sample); err != nil {
		s.reject("invalid_sample")
	}
}

func (s *Session) triggerAlert(msg clientMessage) {
	if msg.BusID == "" {
		s.reject("missing_bus_id")
		return
	}
	typ, ok := model.ParseAlertType(msg.Action)
	if !ok {
		s.reject("unknown_action")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.ing.TriggerAlert(ctx, typ, msg.BusID, msg.Payload, s.userID); err != nil {
		s.reject("alert_rejected")
	}
}

// reject queues a best-effort error frame back to the client.
func (s *Session) reject(reason string) {
	select {
	case s.send <- errorMessage{Type: "error", Reason: reason}:
	default:
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v := <-s.send:
			wire := v
			if ev, isEvent := v.(events.Event); isEvent {
				encoded, ok := encode(ev)
				if !ok {
					s.log.Warnf("session %s: no encoding for event kind %s", s.id, ev.Kind())
					continue
				}
				wire = encoded
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(wire); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
