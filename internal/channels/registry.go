package channels

import (
	"sync"

	"github.com/transitio/fleetcoord/core/events"
)

// Subscriber is a live delivery target, typically one websocket session.
// Send must not block: implementations buffer and report false when the
// event had to be dropped.
type Subscriber interface {
	ID() string
	Send(ev events.Event) bool
}

// BusChannel and UserChannel build the two recognized channel id forms.
func BusChannel(busID string) string   { return "bus:" + busID }
func UserChannel(userID string) string { return "user:" + userID }

// Registry maintains subscriber sets for named channels and delivers
// published events in per-channel order. Channels are created lazily on
// first subscribe and garbage-collected when their last subscriber leaves.
// Delivery is best-effort: a subscriber that cannot take the event right
// now simply misses it.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channel
	closed   bool
}

type channel struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*channel)}
}

// Subscribe adds the subscriber to the channel. Joining a channel twice is
// a no-op; the existing registration wins.
func (r *Registry) Subscribe(channelID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	ch, ok := r.channels[channelID]
	if !ok {
		ch = &channel{subs: make(map[string]Subscriber)}
		r.channels[channelID] = ch
	}
	// The membership add happens before the registry lock is released:
	// otherwise a concurrent last-member Unsubscribe could garbage-collect
	// the channel in the window and strand this subscriber on an object
	// the registry no longer knows.
	ch.mu.Lock()
	if _, exists := ch.subs[sub.ID()]; !exists {
		ch.subs[sub.ID()] = sub
	}
	ch.mu.Unlock()
}

// Unsubscribe removes the subscriber from the channel. Leaving a channel
// the subscriber is not a member of is a no-op. An emptied channel is
// removed from the registry.
func (r *Registry) Unsubscribe(channelID, subscriberID string) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	delete(ch.subs, subscriberID)
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		r.mu.Lock()
		// Re-check under the write lock; a concurrent Subscribe may have
		// repopulated the channel.
		if cur, ok := r.channels[channelID]; ok && cur == ch {
			ch.mu.Lock()
			if len(ch.subs) == 0 {
				delete(r.channels, channelID)
			}
			ch.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber of the channel.
// Calls for the same channel are serialized, so subscribers observe
// per-channel FIFO order. Publishing to a channel nobody watches is not
// an error.
func (r *Registry) Publish(channelID string, ev events.Event) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	closed := r.closed
	r.mu.RUnlock()
	if !ok || closed {
		return
	}

	ch.mu.Lock()
	for _, sub := range ch.subs {
		sub.Send(ev)
	}
	ch.mu.Unlock()
}

// Drop removes the subscriber from every channel it is a member of. Used
// on connection teardown so a dead session never lingers in subscriber
// sets.
func (r *Registry) Drop(subscriberID string) {
	r.mu.Lock()
	for id, ch := range r.channels {
		ch.mu.Lock()
		delete(ch.subs, subscriberID)
		if len(ch.subs) == 0 {
			delete(r.channels, id)
		}
		ch.mu.Unlock()
	}
	r.mu.Unlock()
}

// Subscribers returns the current member count of the channel.
func (r *Registry) Subscribers(channelID string) int {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Channels returns the number of live channels.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Close drops every channel. Subsequent publishes and subscribes are
// ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.channels = make(map[string]*channel)
	r.mu.Unlock()
}
