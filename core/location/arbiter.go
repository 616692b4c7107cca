package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/internal/channels"
)

// ErrInvalidCoordinate rejects samples with out-of-range or non-finite
// coordinates at the boundary.
var ErrInvalidCoordinate = fmt.Errorf("invalid coordinate")

// Publisher is the slice of the channel registry the arbiter needs.
type Publisher interface {
	Publish(channelID string, ev events.Event)
}

// busFeed keeps the latest sample per source for one bus. Each feed has
// its own mutex, so ingestion for different buses never contends.
type busFeed struct {
	mu            sync.Mutex
	samples       map[string]model.LocationSample
	lastPublish   time.Time
	lastPublished model.LocationSample
	published     bool
}

// Arbiter converts multiple, possibly conflicting position feeds per bus
// into one authoritative broadcast stream. Sources are ranked by the
// configured priority order; a stalled high-priority feed falls back to
// the freshest sample among all sources so the broadcast position never
// freezes.
type Arbiter struct {
	cfg  Config
	rank map[string]int
	pub  Publisher
	sink metrics.Sink
	log  logger.Logger

	clock func() time.Time

	mu    sync.RWMutex
	buses map[string]*busFeed
}

// NewArbiter creates an Arbiter with the given configuration.
func NewArbiter(cfg Config, pub Publisher, sink metrics.Sink, log logger.Logger) (*Arbiter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pub == nil || log == nil {
		return nil, fmt.Errorf("location: nil parameter provided to NewArbiter")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	rank := make(map[string]int, len(cfg.SourcePriority))
	for i, src := range cfg.SourcePriority {
		rank[src] = i
	}
	return &Arbiter{
		cfg:   cfg,
		rank:  rank,
		pub:   pub,
		sink:  sink,
		log:   log,
		clock: time.Now,
		buses: make(map[string]*busFeed),
	}, nil
}

func (a *Arbiter) feed(busID string) *busFeed {
	a.mu.RLock()
	f, ok := a.buses[busID]
	a.mu.RUnlock()
	if ok {
		return f
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok = a.buses[busID]; ok {
		return f
	}
	f = &busFeed{samples: make(map[string]model.LocationSample)}
	a.buses[busID] = f
	return f
}

// IngestSample records one position fix. Invalid coordinates are the only
// error surfaced to the producer; a sample older than the one already
// held for the same (bus, source) pair is silently dropped and counted.
// Accepted samples re-run arbitration and may publish a bus:location
// event, subject to the per-bus publish throttle.
func (a *Arbiter) IngestSample(s model.LocationSample) error {
	if err := s.Validate(); err != nil {
		a.drop(s, "invalid")
		return fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}
	f := a.feed(s.BusID)
	now := a.clock()

	f.mu.Lock()
	if prev, ok := f.samples[s.Source]; ok && !s.ObservedAt.After(prev.ObservedAt) {
		f.mu.Unlock()
		a.drop(s, "stale")
		return nil
	}
	f.samples[s.Source] = s
	out, ok := a.maybePublishLocked(f, now)
	f.mu.Unlock()

	if ok {
		a.broadcast(out)
	}
	return nil
}

// Authoritative returns the arbiter's current pick for the bus.
func (a *Arbiter) Authoritative(busID string) (model.LocationSample, bool) {
	a.mu.RLock()
	f, ok := a.buses[busID]
	a.mu.RUnlock()
	if !ok {
		return model.LocationSample{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return a.arbitrateLocked(f, a.clock())
}

// arbitrateLocked picks the highest-priority source's latest sample unless
// it is older than the staleness threshold, in which case the freshest
// sample among all sources wins regardless of rank.
func (a *Arbiter) arbitrateLocked(f *busFeed, now time.Time) (model.LocationSample, bool) {
	var best model.LocationSample
	bestRank := -1
	var freshest model.LocationSample
	found := false
	for _, s := range f.samples {
		if !found || s.ObservedAt.After(freshest.ObservedAt) {
			freshest = s
		}
		found = true
		r, ok := a.rank[s.Source]
		if !ok {
			// Unranked sources only compete for the freshest fallback.
			continue
		}
		if bestRank == -1 || r < bestRank {
			best = s
			bestRank = r
		}
	}
	if !found {
		return model.LocationSample{}, false
	}
	if bestRank >= 0 && best.Age(now) <= a.cfg.StalenessThreshold() {
		return best, true
	}
	return freshest, true
}

// maybePublishLocked applies the throttle and returns the sample to
// broadcast, if any. The feed mutex must be held; the actual publish
// happens after it is released.
func (a *Arbiter) maybePublishLocked(f *busFeed, now time.Time) (model.LocationSample, bool) {
	pick, ok := a.arbitrateLocked(f, now)
	if !ok {
		return model.LocationSample{}, false
	}
	if f.published && now.Sub(f.lastPublish) < a.cfg.PublishInterval() {
		return model.LocationSample{}, false
	}
	if f.published && pick == f.lastPublished {
		return model.LocationSample{}, false
	}
	f.lastPublish = now
	f.lastPublished = pick
	f.published = true
	return pick, true
}

// Run flushes pending positions periodically until the context is
// canceled, so a bus whose ingestion went quiet right after a throttled
// window still gets its latest position out within one interval.
func (a *Arbiter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PublishInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-ctx.Done():
			return
		}
	}
}

func (a *Arbiter) flush() {
	now := a.clock()
	a.mu.RLock()
	feeds := make([]*busFeed, 0, len(a.buses))
	for _, f := range a.buses {
		feeds = append(feeds, f)
	}
	a.mu.RUnlock()

	for _, f := range feeds {
		f.mu.Lock()
		out, ok := a.maybePublishLocked(f, now)
		f.mu.Unlock()
		if ok {
			a.broadcast(out)
		}
	}
}

func (a *Arbiter) broadcast(s model.LocationSample) {
	a.pub.Publish(channels.BusChannel(s.BusID), events.LocationUpdate{Sample: s})
	if rec, ok := a.sink.(metrics.LocationRecorder); ok {
		if err := rec.RecordLocationPublish(s); err != nil {
			a.log.Errorf("location metrics error: %v", err)
		}
	}
}

func (a *Arbiter) drop(s model.LocationSample, reason string) {
	a.log.Debugw("sample dropped", map[string]any{
		"bus_id": s.BusID,
		"source": s.Source,
		"reason": reason,
	})
	if rec, ok := a.sink.(metrics.SampleDropRecorder); ok {
		if err := rec.RecordSampleDrop(s.BusID, s.Source, reason); err != nil {
			a.log.Errorf("sample drop metrics error: %v", err)
		}
	}
}
