package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/core/monitoring"
	"github.com/transitio/fleetcoord/core/roster"
	"github.com/transitio/fleetcoord/internal/channels"
)

// ErrUnknownBus rejects alerts for buses missing from the roster.
var ErrUnknownBus = errors.New("unknown bus")

// Publisher is the slice of the channel registry the dispatcher needs.
type Publisher interface {
	Publish(channelID string, ev events.Event)
}

// Config defines alert retention settings.
type Config struct {
	// RetentionMinutes bounds how long triggered alerts stay fetchable
	// for reconnecting clients.
	RetentionMinutes int `json:"retention_minutes"`
	// PruneIntervalSeconds drives the background retention pass.
	PruneIntervalSeconds int `json:"prune_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RetentionMinutes == 0 {
		c.RetentionMinutes = 60
	}
	if c.PruneIntervalSeconds == 0 {
		c.PruneIntervalSeconds = 300
	}
}

// Dispatcher creates, persists and fans out safety events. Every trigger
// yields a new uniquely identified AlertEvent: dedup of repeated physical
// actions belongs to the call site, dedup of repeated deliveries belongs
// to the receiver keyed on the alert id.
type Dispatcher struct {
	cfg     Config
	pub     Publisher
	backlog Backlog
	roster  roster.Roster
	sink    metrics.Sink
	log     logger.Logger
	clock   func() time.Time
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(cfg Config, pub Publisher, backlog Backlog, r roster.Roster, sink metrics.Sink, log logger.Logger) (*Dispatcher, error) {
	cfg.SetDefaults()
	if pub == nil || backlog == nil || r == nil || log == nil {
		return nil, fmt.Errorf("alerts: nil parameter provided to NewDispatcher")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{
		cfg:     cfg,
		pub:     pub,
		backlog: backlog,
		roster:  r,
		sink:    sink,
		log:     log,
		clock:   time.Now,
	}, nil
}

// TriggerAlert records and fans out one safety event. It never fails for
// lack of live subscribers; the backlog entry is what late-joining owner
// and driver clients retrieve. Only an unknown bus is an error.
func (d *Dispatcher) TriggerAlert(ctx context.Context, typ model.AlertType, busID string, payload map[string]string, originID string) (model.AlertEvent, error) {
	info, ok := d.roster.Bus(busID)
	if !ok {
		return model.AlertEvent{}, fmt.Errorf("bus %s: %w", busID, ErrUnknownBus)
	}

	ev := model.AlertEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		BusID:     busID,
		OriginID:  originID,
		Payload:   payload,
		CreatedAt: d.clock(),
	}

	// Resolve the wire form before touching the backlog so an invalid
	// type never leaves a persisted record behind.
	var wire events.Event
	switch typ {
	case model.AlertSOS:
		wire = events.SosAlert{Alert: ev}
	case model.AlertBreakdown:
		wire = events.BreakdownAlert{Alert: ev}
	default:
		return model.AlertEvent{}, fmt.Errorf("alert type %d: unknown", typ)
	}

	if err := d.backlog.Append(ctx, ev); err != nil {
		// The live fan-out still proceeds: a delivery now is worth more
		// than a fetchable record later.
		d.log.Errorf("alert backlog append failed: %v", err)
		monitoring.CaptureException(err, map[string]string{"component": "alerts", "bus_id": busID})
	}

	d.pub.Publish(channels.BusChannel(busID), wire)
	for _, userID := range roleRecipients(info) {
		d.pub.Publish(channels.UserChannel(userID), wire)
	}

	if rec, ok := d.sink.(metrics.AlertRecorder); ok {
		if err := rec.RecordAlert(ev); err != nil {
			d.log.Errorf("alert metrics error: %v", err)
		}
	}
	d.log.Infof("alert %s (%s) triggered for bus %s by %s", ev.ID, typ, busID, originID)
	return ev, nil
}

// Missed returns the bus's backlog entries created at or after since.
func (d *Dispatcher) Missed(ctx context.Context, busID string, since time.Time) ([]model.AlertEvent, error) {
	if _, ok := d.roster.Bus(busID); !ok {
		return nil, fmt.Errorf("bus %s: %w", busID, ErrUnknownBus)
	}
	return d.backlog.Since(ctx, busID, since)
}

// Run prunes the backlog periodically until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(d.cfg.PruneIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := d.clock().Add(-time.Duration(d.cfg.RetentionMinutes) * time.Minute)
			if err := d.backlog.Prune(ctx, cutoff); err != nil {
				d.log.Errorf("backlog prune failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// roleRecipients resolves the user channels that must receive the alert
// in addition to the bus channel: the owner and the on-duty driver.
func roleRecipients(info model.BusInfo) []string {
	var out []string
	if info.OwnerID != "" {
		out = append(out, info.OwnerID)
	}
	if info.DriverID != "" && info.DriverID != info.OwnerID {
		out = append(out, info.DriverID)
	}
	return out
}
