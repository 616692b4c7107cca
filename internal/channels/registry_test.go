package channels

import (
	"sync"
	"testing"
	"time"

	"github.com/transitio/fleetcoord/core/events"
	"github.com/transitio/fleetcoord/core/model"
)

type recordingSub struct {
	id   string
	mu   sync.Mutex
	got  []events.Event
	full bool
}

func (s *recordingSub) ID() string { return s.id }

func (s *recordingSub) Send(ev events.Event) bool {
	if s.full {
		return false
	}
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	return true
}

func (s *recordingSub) events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.got))
	copy(out, s.got)
	return out
}

func TestRegistryPublishSubscribe(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)

	r.Publish(BusChannel("B1"), events.SeatUpdate{BusID: "B1", SeatNumber: 5, Status: model.SeatHeld})
	if got := sub.events(); len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
}

func TestRegistryPerChannelOrder(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)

	for i := 0; i < 50; i++ {
		r.Publish(BusChannel("B1"), events.SeatUpdate{BusID: "B1", SeatNumber: i})
	}
	got := sub.events()
	if len(got) != 50 {
		t.Fatalf("expected 50 events, got %d", len(got))
	}
	for i, ev := range got {
		su := ev.(events.SeatUpdate)
		if su.SeatNumber != i {
			t.Fatalf("event %d out of order: seat %d", i, su.SeatNumber)
		}
	}
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)
	r.Subscribe(BusChannel("B1"), sub)
	if n := r.Subscribers(BusChannel("B1")); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	r.Publish(BusChannel("B1"), events.LocationUpdate{})
	if got := sub.events(); len(got) != 1 {
		t.Fatalf("double subscribe caused %d deliveries", len(got))
	}
}

func TestRegistryUnsubscribeNonMember(t *testing.T) {
	r := NewRegistry()
	r.Unsubscribe(BusChannel("B1"), "ghost")
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)
	r.Unsubscribe(BusChannel("B1"), "ghost")
	if n := r.Subscribers(BusChannel("B1")); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}

func TestRegistryGarbageCollectsEmptyChannels(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)
	r.Subscribe(UserChannel("U1"), sub)
	if n := r.Channels(); n != 2 {
		t.Fatalf("expected 2 channels, got %d", n)
	}
	r.Unsubscribe(BusChannel("B1"), "s1")
	if n := r.Channels(); n != 1 {
		t.Fatalf("expected empty channel to be collected, have %d", n)
	}
	r.Drop("s1")
	if n := r.Channels(); n != 0 {
		t.Fatalf("expected 0 channels after drop, have %d", n)
	}
}

// A subscriber joining while the previous last member leaves must land in
// the registered channel, not in an object the leave's garbage collection
// already removed. Once Subscribe returns, the next publish has to reach
// the new member.
func TestRegistrySubscribeSurvivesConcurrentGC(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 1000; i++ {
		leaving := &recordingSub{id: "leaving"}
		r.Subscribe(BusChannel("B1"), leaving)
		joining := &recordingSub{id: "joining"}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Unsubscribe(BusChannel("B1"), "leaving")
		}()
		go func() {
			defer wg.Done()
			r.Subscribe(BusChannel("B1"), joining)
		}()
		wg.Wait()

		r.Publish(BusChannel("B1"), events.SeatUpdate{BusID: "B1", SeatNumber: i})
		if len(joining.events()) != 1 {
			t.Fatalf("iteration %d: subscription lost to concurrent channel GC", i)
		}
		r.Unsubscribe(BusChannel("B1"), "joining")
	}
}

func TestRegistryDropRemovesFromAllChannels(t *testing.T) {
	r := NewRegistry()
	s1 := &recordingSub{id: "s1"}
	s2 := &recordingSub{id: "s2"}
	r.Subscribe(BusChannel("B1"), s1)
	r.Subscribe(BusChannel("B2"), s1)
	r.Subscribe(BusChannel("B1"), s2)

	r.Drop("s1")
	if n := r.Subscribers(BusChannel("B1")); n != 1 {
		t.Fatalf("expected s2 to remain, got %d subscribers", n)
	}
	if n := r.Subscribers(BusChannel("B2")); n != 0 {
		t.Fatalf("expected B2 empty, got %d", n)
	}
}

func TestRegistryBestEffortDelivery(t *testing.T) {
	r := NewRegistry()
	dead := &recordingSub{id: "dead", full: true}
	live := &recordingSub{id: "live"}
	r.Subscribe(BusChannel("B1"), dead)
	r.Subscribe(BusChannel("B1"), live)

	r.Publish(BusChannel("B1"), events.SeatUpdate{BusID: "B1", SeatNumber: 1, At: time.Now()})
	if got := live.events(); len(got) != 1 {
		t.Fatalf("a full subscriber must not block the rest: got %d", len(got))
	}
}

func TestRegistryConcurrentPublish(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)
	r.Subscribe(BusChannel("B2"), sub)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if n%2 == 0 {
					r.Publish(BusChannel("B1"), events.SeatUpdate{BusID: "B1", SeatNumber: j})
				} else {
					r.Publish(BusChannel("B2"), events.SeatUpdate{BusID: "B2", SeatNumber: j})
				}
			}
		}(i)
	}
	wg.Wait()
	if got := sub.events(); len(got) != 200 {
		t.Fatalf("expected 200 deliveries, got %d", len(got))
	}
}

func TestRegistryCloseStopsDelivery(t *testing.T) {
	r := NewRegistry()
	sub := &recordingSub{id: "s1"}
	r.Subscribe(BusChannel("B1"), sub)
	r.Close()
	r.Publish(BusChannel("B1"), events.LocationUpdate{})
	if got := sub.events(); len(got) != 0 {
		t.Fatalf("expected no delivery after close, got %d", len(got))
	}
}
