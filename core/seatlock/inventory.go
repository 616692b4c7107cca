package seatlock

import (
	"sort"
	"sync"
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// seatState is the authoritative record for one seat. It is only ever
// touched while the owning busState mutex is held.
type seatState struct {
	number   int
	category string
	status   model.SeatStatus
	hold     *model.Hold
}

// busState serializes every mutation of one bus's seat set. Seats on
// different buses never interact, so each bus carries its own mutex and
// concurrent claims on distinct buses proceed in parallel.
type busState struct {
	mu    sync.Mutex
	id    string
	seats map[int]*seatState
}

func newBusState(info model.BusInfo) *busState {
	b := &busState{id: info.ID, seats: make(map[int]*seatState, len(info.Seats))}
	for _, s := range info.Seats {
		b.seats[s.Number] = &seatState{number: s.Number, category: s.Category, status: model.SeatAvailable}
	}
	return b
}

// expireLocked clears an expired hold and frees the seat, returning the
// hold that was removed so the caller can forget its token. Callers must
// hold b.mu. Returns nil when no transition happened.
func (b *busState) expireLocked(s *seatState, now time.Time) *model.Hold {
	if s.status != model.SeatHeld || s.hold == nil || !s.hold.Expired(now) {
		return nil
	}
	h := s.hold
	s.hold = nil
	s.status = model.SeatAvailable
	return h
}

// snapshotLocked copies the current seat set, sorted by seat number. A
// held seat whose hold already expired is reported as available even if
// the sweep has not caught up yet. Callers must hold b.mu.
func (b *busState) snapshotLocked(now time.Time) []model.Seat {
	out := make([]model.Seat, 0, len(b.seats))
	for _, s := range b.seats {
		status := s.status
		if status == model.SeatHeld && s.hold != nil && s.hold.Expired(now) {
			status = model.SeatAvailable
		}
		out = append(out, model.Seat{
			BusID:    b.id,
			Number:   s.number,
			Status:   status,
			Category: s.category,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
