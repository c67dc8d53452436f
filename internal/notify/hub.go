// Package notify carries "data changed" signals between rendering contexts
// of the same session, e.g. from the settings editor to a live profile
// preview. Delivery is fire-and-forget: a context that is not subscribed at
// publish time simply misses the signal and reconciles at its next refetch.
package notify

import (
	"sync"
)

type Signal string

const (
	SignalLinksChanged   Signal = "links_changed"
	SignalGroupsChanged  Signal = "groups_changed"
	SignalProfileChanged Signal = "profile_changed"
	SignalUserChanged    Signal = "user_changed"
)

type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Signal
}

func NewHub() *Hub {
	return &Hub{
		subs: map[int]chan Signal{},
	}
}

// Subscribe returns a signal channel and an unsubscribe func. The channel is
// buffered; once full, further publishes to this subscriber are dropped.
func (h *Hub) Subscribe() (<-chan Signal, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Signal, 16)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish broadcasts at most once per subscriber and never blocks.
func (h *Hub) Publish(s Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
