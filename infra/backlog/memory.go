package backlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// MemoryBacklog keeps alerts in process memory. It is the default store
// for single-instance deployments and tests.
type MemoryBacklog struct {
	mu    sync.RWMutex
	byBus map[string][]model.AlertEvent
}

// NewMemoryBacklog creates an empty MemoryBacklog.
func NewMemoryBacklog() *MemoryBacklog {
	return &MemoryBacklog{byBus: make(map[string][]model.AlertEvent)}
}

func (b *MemoryBacklog) Append(_ context.Context, ev model.AlertEvent) error {
	b.mu.Lock()
	b.byBus[ev.BusID] = append(b.byBus[ev.BusID], ev)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBacklog) Since(_ context.Context, busID string, since time.Time) ([]model.AlertEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.AlertEvent
	for _, ev := range b.byBus[busID] {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *MemoryBacklog) Prune(_ context.Context, cutoff time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for busID, evs := range b.byBus {
		kept := evs[:0]
		for _, ev := range evs {
			if !ev.CreatedAt.Before(cutoff) {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(b.byBus, busID)
			continue
		}
		b.byBus[busID] = kept
	}
	return nil
}
