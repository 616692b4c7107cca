package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/core/roster"
	"github.com/transitio/fleetcoord/infra/logger"
)

type capturingPublisher struct {
	mu   sync.Mutex
	byCh map[string][]events.Event
}

func (p *capturingPublisher) Publish(channelID string, ev events.Event) {
	p.mu.Lock()
	if p.byCh == nil {
		p.byCh = make(map[string][]events.Event)
	}
	p.byCh[channelID] = append(p.byCh[channelID], ev)
	p.mu.Unlock()
}

func (p *capturingPublisher) on(channelID string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byCh[channelID]
}

type memBacklog struct {
	mu     sync.Mutex
	items  []model.AlertEvent
	failed bool
}

func (b *memBacklog) Append(_ context.Context, ev model.AlertEvent) error {
	if b.failed {
		return errors.New("backlog down")
	}
	b.mu.Lock()
	b.items = append(b.items, ev)
	b.mu.Unlock()
	return nil
}

func (b *memBacklog) Since(_ context.Context, busID string, since time.Time) ([]model.AlertEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.AlertEvent
	for _, ev := range b.items {
		if ev.BusID == busID && !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *memBacklog) Prune(_ context.Context, cutoff time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var kept []model.AlertEvent
	for _, ev := range b.items {
		if !ev.CreatedAt.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	b.items = kept
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *capturingPublisher, *memBacklog) {
	t.Helper()
	pub := &capturingPublisher{}
	backlog := &memBacklog{}
	r := roster.NewStatic([]model.BusInfo{
		{ID: "B1", OwnerID: "O1", DriverID: "D1"},
		{ID: "B2", OwnerID: "O2", DriverID: "O2"},
	})
	d, err := NewDispatcher(Config{}, pub, backlog, r, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return d, pub, backlog
}

func TestTriggerAlertFansOut(t *testing.T) {
	d, pub, backlog := newTestDispatcher(t)
	ev, err := d.TriggerAlert(context.Background(), model.AlertSOS, "B1", map[string]string{"lat": "12.9"}, "U1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ev.ID == "" || ev.Type != model.AlertSOS || ev.BusID != "B1" {
		t.Fatalf("bad event: %+v", ev)
	}

	for _, ch := range []string{"bus:B1", "user:O1", "user:D1"} {
		got := pub.on(ch)
		if len(got) != 1 {
			t.Fatalf("channel %s got %d events, want 1", ch, len(got))
		}
		sos, ok := got[0].(events.SosAlert)
		if !ok || sos.Alert.ID != ev.ID {
			t.Fatalf("channel %s got %+v", ch, got[0])
		}
	}
	if len(backlog.items) != 1 {
		t.Fatalf("backlog must record the alert")
	}
}

func TestTriggerAlertDistinctIDs(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	a, err := d.TriggerAlert(context.Background(), model.AlertSOS, "B1", nil, "U1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	b, err := d.TriggerAlert(context.Background(), model.AlertSOS, "B1", nil, "U1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("repeated triggers must produce distinct ids")
	}
}

func TestTriggerAlertOwnerIsDriver(t *testing.T) {
	d, pub, _ := newTestDispatcher(t)
	if _, err := d.TriggerAlert(context.Background(), model.AlertBreakdown, "B2", nil, "D2"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := pub.on("user:O2"); len(got) != 1 {
		t.Fatalf("owner-driver must receive exactly one copy, got %d", len(got))
	}
}

func TestTriggerAlertUnknownBus(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	if _, err := d.TriggerAlert(context.Background(), model.AlertSOS, "ghost", nil, "U1"); !errors.Is(err, ErrUnknownBus) {
		t.Fatalf("expected ErrUnknownBus, got %v", err)
	}
}

func TestTriggerAlertRejectsUnknownTypeBeforePersisting(t *testing.T) {
	d, pub, backlog := newTestDispatcher(t)
	if _, err := d.TriggerAlert(context.Background(), model.AlertType(99), "B1", nil, "U1"); err == nil {
		t.Fatalf("expected error for unknown alert type")
	}
	if len(backlog.items) != 0 {
		t.Fatalf("rejected alert must not reach the backlog, got %d entries", len(backlog.items))
	}
	if got := pub.on("bus:B1"); len(got) != 0 {
		t.Fatalf("rejected alert must not fan out, got %d events", len(got))
	}
}

func TestTriggerAlertSurvivesBacklogFailure(t *testing.T) {
	d, pub, backlog := newTestDispatcher(t)
	backlog.failed = true
	if _, err := d.TriggerAlert(context.Background(), model.AlertSOS, "B1", nil, "U1"); err != nil {
		t.Fatalf("trigger must not fail on backlog error: %v", err)
	}
	if got := pub.on("bus:B1"); len(got) != 1 {
		t.Fatalf("live fan-out must still happen, got %d", len(got))
	}
}

func TestMissedReturnsBacklog(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	base := time.Now()
	ticks := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	i := 0
	d.clock = func() time.Time { t := ticks[i]; i++; return t }

	for range ticks {
		if _, err := d.TriggerAlert(context.Background(), model.AlertBreakdown, "B1", nil, "D1"); err != nil {
			t.Fatalf("trigger: %v", err)
		}
	}

	got, err := d.Missed(context.Background(), "B1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("missed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 missed alerts, got %d", len(got))
	}

	if _, err := d.Missed(context.Background(), "ghost", base); !errors.Is(err, ErrUnknownBus) {
		t.Fatalf("expected ErrUnknownBus, got %v", err)
	}
}
