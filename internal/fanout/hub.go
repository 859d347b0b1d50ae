// Package fanout keeps the in-memory registry of live viewers per wishlist
// and delivers published events to them.
package fanout

import (
	"sync"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 64

// Subscription is one viewer's channel. C is closed when the subscription
// ends, either through Unsubscribe or because the viewer fell behind.
type Subscription struct {
	WishlistID uuid.UUID
	C          <-chan []byte

	ch     chan []byte
	t      *topic
	closed bool // guarded by t.mu
}

type topic struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Hub is a registry of subscriptions keyed by wishlist. Lock order is
// Hub.mu before topic.mu. Publishing holds only the target topic's lock, so
// wishlists never block each other.
type Hub struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]*topic
	buffer int
}

// NewHub creates a hub whose subscribers queue up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[uuid.UUID]*topic),
		buffer: buffer,
	}
}

// Subscribe registers a new viewer of wishlistID.
func (h *Hub) Subscribe(wishlistID uuid.UUID) *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{WishlistID: wishlistID, C: ch, ch: ch}

	h.mu.Lock()
	t, ok := h.topics[wishlistID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[wishlistID] = t
	}
	sub.t = t
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	h.mu.Unlock()

	metrics.LiveSubscribers.Inc()
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once and after the hub already dropped the subscriber.
func (h *Hub) Unsubscribe(sub *Subscription) {
	t := sub.t
	t.mu.Lock()
	removed := t.remove(sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if removed {
		metrics.LiveSubscribers.Dec()
	}
	if empty {
		h.prune(sub.WishlistID, t)
	}
}

// Publish delivers payload to every subscriber of wishlistID registered at
// the time of the call and returns how many received it. A subscriber whose
// queue is full is dropped and its channel closed; the others still get
// the event. Events published to one wishlist reach each subscriber in
// publish order.
func (h *Hub) Publish(wishlistID uuid.UUID, payload []byte) int {
	t := h.topic(wishlistID)
	if t == nil {
		return 0
	}

	delivered, dropped := 0, 0
	t.mu.Lock()
	for sub := range t.subs {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			t.remove(sub)
			dropped++
		}
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	metrics.EventsDelivered.Add(float64(delivered))
	if dropped > 0 {
		metrics.LiveDropped.Add(float64(dropped))
		metrics.LiveSubscribers.Sub(float64(dropped))
	}
	if empty {
		h.prune(wishlistID, t)
	}
	return delivered
}

// Subscribers returns the number of live subscribers of wishlistID.
func (h *Hub) Subscribers(wishlistID uuid.UUID) int {
	t := h.topic(wishlistID)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Topics returns the number of wishlists with at least one registry entry.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) topic(wishlistID uuid.UUID) *topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topics[wishlistID]
}

// prune deletes the wishlist entry if t is still registered and empty. A
// subscriber that joined in between keeps the entry alive.
func (h *Hub) prune(wishlistID uuid.UUID, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[wishlistID] != t {
		return
	}
	t.mu.Lock()
	if len(t.subs) == 0 {
		delete(h.topics, wishlistID)
	}
	t.mu.Unlock()
}

// remove deletes sub from the topic and closes its channel. Callers hold t.mu.
func (t *topic) remove(sub *Subscription) bool {
	if sub.closed {
		return false
	}
	if _, ok := t.subs[sub]; !ok {
		return false
	}
	delete(t.subs, sub)
	sub.closed = true
	close(sub.ch)
	return true
}
