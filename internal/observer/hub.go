// Package observer broadcasts routed messages to live subscribers.
package observer

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ibs-source/mqtt-router/internal/message"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Observer is one live subscriber. Messages arrive on C until Unregister.
type Observer struct {
	ID string
	C  <-chan message.ObserverMessage

	ch      chan message.ObserverMessage
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// send delivers msg without blocking. It reports false when the
// observer's buffer is full or the observer is gone.
func (o *Observer) send(msg message.ObserverMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- msg:
		return true
	default:
		o.dropped.Add(1)
		return false
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}

// Dropped returns how many messages this observer missed.
func (o *Observer) Dropped() uint64 {
	return o.dropped.Load()
}

// Hub tracks registered observers. Registration takes effect for messages
// published afterwards; there is no backlog.
type Hub struct {
	observers cmap.ConcurrentMap[string, *Observer]
	buffer    int
	dropped   atomic.Uint64
	published atomic.Uint64
}

// NewHub creates a hub giving every observer a buffer of the given size.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		observers: cmap.New[*Observer](),
		buffer:    buffer,
	}
}

// Register adds a new observer.
func (h *Hub) Register() *Observer {
	ch := make(chan message.ObserverMessage, h.buffer)
	o := &Observer{ID: uuid.NewString(), C: ch, ch: ch}
	h.observers.Set(o.ID, o)
	return o
}

// Unregister removes o and closes its channel. Safe to call more than once.
func (h *Hub) Unregister(o *Observer) {
	if o == nil {
		return
	}
	h.observers.Remove(o.ID)
	o.close()
}

// Publish sends msg to every observer. A full observer misses the message;
// others are unaffected.
func (h *Hub) Publish(msg message.ObserverMessage) {
	h.published.Add(1)
	h.observers.IterCb(func(_ string, o *Observer) {
		if !o.send(msg) {
			h.dropped.Add(1)
		}
	})
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	return h.observers.Count()
}

// Dropped returns the total number of undelivered observer messages.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Published returns how many messages were broadcast.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}
