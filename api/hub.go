package api

import (
	"sync"

	leasekeeper "go-leasekeeper"
)

// Event types pushed on the change feed.
const (
	EventReserved = "reserved"
	EventCleared  = "cleared"
	EventCreated  = "created"
	EventDeleted  = "deleted"
)

// Event describes one successful mutation.
type Event struct {
	Type     string               `json:"type"`
	Resource leasekeeper.Resource `json:"resource"`
}

// Hub fans events out to watchers. A watcher whose buffer is full is dropped instead of
// blocking the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	buffer      int
	closed      bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a watcher. The channel is closed when the watcher is dropped, the hub is
// closed or unsubscribe is called.
func (h *Hub) Subscribe() (events <-chan Event, unsubscribe func()) {
	var ch = make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(ch)
	}
}

// Publish delivers ev to every watcher without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.remove(ch)
		}
	}
}

// Len returns the number of connected watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close drops every watcher and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		h.remove(ch)
	}
}

// remove must be called with mu held.
func (h *Hub) remove(ch chan Event) {
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}
