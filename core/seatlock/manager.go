package seatlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/internal/channels"
)

// Publisher is the slice of the channel registry the manager needs.
type Publisher interface {
	Publish(channelID string, ev events.Event)
}

// Config defines hold lifecycle parameters.
type Config struct {
	// HoldTTLSeconds is the default hold lifetime when the caller does
	// not request one.
	HoldTTLSeconds int `json:"hold_ttl_seconds"`
	// SweepIntervalSeconds drives the background expiry pass. It should
	// be materially shorter than the TTL to keep expiry latency low.
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.HoldTTLSeconds == 0 {
		c.HoldTTLSeconds = 300
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = 15
	}
}

// Validate checks the TTL/sweep relationship.
func (c Config) Validate() error {
	if c.HoldTTLSeconds <= 0 {
		return fmt.Errorf("hold_ttl_seconds must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive")
	}
	if c.SweepIntervalSeconds >= c.HoldTTLSeconds {
		return fmt.Errorf("sweep_interval_seconds must be shorter than hold_ttl_seconds")
	}
	return nil
}

type tokenRef struct {
	busID      string
	seatNumber int
}

// Manager owns the hold/confirm/expire lifecycle on top of the per-bus
// seat inventories. It is the only component allowed to mutate seat
// status. All mutations for one bus run under that bus's mutex; the mutex
// is never held across publishing or any other I/O.
type Manager struct {
	cfg   Config
	log   logger.Logger
	sink  metrics.Sink
	pub   Publisher
	clock func() time.Time

	mu    sync.RWMutex
	buses map[string]*busState

	tokMu  sync.Mutex
	tokens map[string]tokenRef
}

// NewManager builds a Manager seeded with the given bus roster.
func NewManager(cfg Config, roster []model.BusInfo, pub Publisher, sink metrics.Sink, log logger.Logger) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pub == nil || log == nil {
		return nil, fmt.Errorf("seatlock: nil parameter provided to NewManager")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	m := &Manager{
		cfg:    cfg,
		log:    log,
		sink:   sink,
		pub:    pub,
		clock:  time.Now,
		buses:  make(map[string]*busState, len(roster)),
		tokens: make(map[string]tokenRef),
	}
	for _, info := range roster {
		m.buses[info.ID] = newBusState(info)
	}
	return m, nil
}

func (m *Manager) bus(busID string) (*busState, bool) {
	m.mu.RLock()
	b, ok := m.buses[busID]
	m.mu.RUnlock()
	return b, ok
}

// AcquireHold claims the seat for holderID if it is currently available.
// A zero ttl uses the configured default. The returned Hold carries the
// token required to release or confirm it.
func (m *Manager) AcquireHold(busID string, seatNumber int, holderID string, ttl time.Duration) (model.Hold, error) {
	if ttl <= 0 {
		ttl = time.Duration(m.cfg.HoldTTLSeconds) * time.Second
	}
	b, ok := m.bus(busID)
	if !ok {
		return model.Hold{}, fmt.Errorf("bus %s: %w", busID, ErrSeatNotFound)
	}
	now := m.clock()

	b.mu.Lock()
	seat, ok := b.seats[seatNumber]
	if !ok {
		b.mu.Unlock()
		m.conflict(busID, "seat_not_found")
		return model.Hold{}, fmt.Errorf("bus %s seat %d: %w", busID, seatNumber, ErrSeatNotFound)
	}
	// A hold past its TTL no longer counts, even before the sweep ran.
	if h := b.expireLocked(seat, now); h != nil {
		m.forgetToken(h.Token)
	}
	switch seat.status {
	case model.SeatBooked:
		b.mu.Unlock()
		m.conflict(busID, "seat_booked")
		return model.Hold{}, fmt.Errorf("bus %s seat %d: %w", busID, seatNumber, ErrSeatBooked)
	case model.SeatHeld:
		b.mu.Unlock()
		m.conflict(busID, "seat_already_held")
		return model.Hold{}, fmt.Errorf("bus %s seat %d: %w", busID, seatNumber, ErrSeatAlreadyHeld)
	}

	hold := model.Hold{
		Token:      uuid.NewString(),
		BusID:      busID,
		SeatNumber: seatNumber,
		HolderID:   holderID,
		ExpiresAt:  now.Add(ttl),
	}
	seat.status = model.SeatHeld
	seat.hold = &hold
	m.tokMu.Lock()
	m.tokens[hold.Token] = tokenRef{busID: busID, seatNumber: seatNumber}
	m.tokMu.Unlock()
	b.mu.Unlock()

	m.publishSeat(busID, seatNumber, model.SeatHeld, "hold", now)
	return hold, nil
}

/// ReleaseHold gives the seat back. It is idempotent: releasing a token
// that was already released, expired or never existed is a no-op success,
// because client/sweep races are expected.
func (m *Manager) ReleaseHold(token string) error {
	if token == "" {
		return ErrHoldNotFound
	}
	m.tokMu.Lock()
	ref, ok := m.tokens[token]
	m.tokMu.Unlock()
	if !ok {
		return nil
	}
	b, ok := m.bus(ref.busID)
	if !ok {
		return nil
	}
	now := m.clock()

	b.mu.Lock()
	seat, ok := b.seats[ref.seatNumber]
	if !ok || seat.hold == nil || seat.hold.Token != token {
		// The sweep or a concurrent release got here first.
		b.mu.Unlock()
		return nil
	}
	m.forgetToken(token)
	seat.hold = nil
	seat.status = model.SeatAvailable
	b.mu.Unlock()

	m.publishSeat(ref.busID, ref.seatNumber, model.SeatAvailable, "release", now)
	return nil
}

// ConfirmBooking transitions Held to Booked. It succeeds only when the
// token refers to an active, unexpired hold owned by holderID; otherwise
// it fails without side effects, except that an expired hold frees the
// seat immediately.
func (m *Manager) ConfirmBooking(token, holderID string) error {
	if token == "" {
		return ErrHoldNotFound
	}
	m.tokMu.Lock()
	ref, ok := m.tokens[token]
	m.tokMu.Unlock()
	if !ok {
		m.conflict("", "hold_not_found")
		return ErrHoldNotFound
	}
	b, ok := m.bus(ref.busID)
	if !ok {
		return ErrHoldNotFound
	}
	now := m.clock()

	b.mu.Lock()
	seat, ok := b.seats[ref.seatNumber]
	if !ok || seat.hold == nil || seat.hold.Token != token {
		b.mu.Unlock()
		m.conflict(ref.busID, "hold_not_found")
		return ErrHoldNotFound
	}
	if seat.hold.Expired(now) {
		m.forgetToken(token)
		seat.hold = nil
		seat.status = model.SeatAvailable
		b.mu.Unlock()
		m.publishSeat(ref.busID, ref.seatNumber, model.SeatAvailable, "expire", now)
		m.conflict(ref.busID, "hold_expired")
		return fmt.Errorf("bus %s seat %d: %w", ref.busID, ref.seatNumber, ErrHoldExpired)
	}
	if seat.hold.HolderID != holderID {
		b.mu.Unlock()
		m.conflict(ref.busID, "hold_not_owned")
		return fmt.Errorf("bus %s seat %d: %w", ref.busID, ref.seatNumber, ErrHoldNotOwned)
	}
	m.forgetToken(token)
	seat.hold = nil
	seat.status = model.SeatBooked
	b.mu.Unlock()

	m.publishSeat(ref.busID, ref.seatNumber, model.SeatBooked, "confirm", now)
	return nil
}

// Seats returns a point-in-time snapshot of the bus's seat statuses.
func (m *Manager) Seats(busID string) ([]model.Seat, error) {
	b, ok := m.bus(busID)
	if !ok {
		return nil, fmt.Errorf("bus %s: %w", busID, ErrSeatNotFound)
	}
	now := m.clock()
	b.mu.Lock()
	snap := b.snapshotLocked(now)
	b.mu.Unlock()
	return snap, nil
}

// Sweep expires every hold whose TTL elapsed and frees the seats. It
// returns the number of holds expired. The seat transition and the hold
// removal happen as one atomic step under the bus mutex, so a racing
// release or confirm can never double-transition the seat.
func (m *Manager) Sweep() int {
	now := m.clock()
	m.mu.RLock()
	buses := make([]*busState, 0, len(m.buses))
	for _, b := range m.buses {
		buses = append(buses, b)
	}
	m.mu.RUnlock()

	type expired struct {
		busID      string
		seatNumber int
	}
	var freed []expired
	for _, b := range buses {
		b.mu.Lock()
		for _, seat := range b.seats {
			if h := b.expireLocked(seat, now); h != nil {
				m.forgetToken(h.Token)
				freed = append(freed, expired{busID: b.id, seatNumber: seat.number})
			}
		}
		b.mu.Unlock()
	}

	for _, e := range freed {
		m.publishSeat(e.busID, e.seatNumber, model.SeatAvailable, "expire", now)
	}
	if len(freed) > 0 {
		m.log.Debugf("sweep expired %d holds", len(freed))
	}
	return len(freed)
}

// Run sweeps expired holds periodically until the context is canceled.
func (m *Manager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// forgetToken removes the token from the lookup index. The bus mutex is
// held at every call site, so the index never points at a hold that was
// already replaced.
func (m *Manager) forgetToken(token string) {
	m.tokMu.Lock()
	delete(m.tokens, token)
	m.tokMu.Unlock()
}

// publishSeat runs after the bus mutex is released, so two transitions
// racing on the same seat may publish in the opposite order of their
// state changes. Subscribers reconcile against the Seats snapshot; the
// event stream is a change notification, not the source of truth.
func (m *Manager) publishSeat(busID string, seatNumber int, status model.SeatStatus, reason string, now time.Time) {
	m.pub.Publish(channels.BusChannel(busID), events.SeatUpdate{
		BusID:      busID,
		SeatNumber: seatNumber,
		Status:     status,
		At:         now,
	})
	if err := m.sink.RecordSeatTransition(metrics.SeatTransitionEvent{
		BusID:      busID,
		SeatNumber: seatNumber,
		Status:     status,
		Reason:     reason,
		Time:       now,
	}); err != nil {
		m.log.Errorf("seat transition metrics error: %v", err)
	}
}

func (m *Manager) conflict(busID, reason string) {
	if rec, ok := m.sink.(metrics.HoldConflictRecorder); ok {
		if err := rec.RecordHoldConflict(busID, reason); err != nil {
			m.log.Errorf("hold conflict metrics error: %v", err)
		}
	}
}
