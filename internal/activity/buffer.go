// Package activity keeps a bounded window of recently observed messages.
package activity

import (
	"sync"

	"github.com/ibs-source/mqtt-router/internal/message"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Buffer is a fixed-capacity ring, newest first. Safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	items []message.Activity
	head  int // index of the next write
	size  int
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]message.Activity, capacity)}
}

// Append inserts rec at the front, evicting the oldest record when full.
func (b *Buffer) Append(rec message.Activity) {
	b.mu.Lock()
	b.items[b.head] = rec
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
	b.mu.Unlock()
}

// Snapshot returns a copy of the buffer, most recent first.
func (b *Buffer) Snapshot() []message.Activity {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]message.Activity, b.size)
	idx := b.head
	for i := 0; i < b.size; i++ {
		idx--
		if idx < 0 {
			idx = len(b.items) - 1
		}
		out[i] = b.items[idx]
	}
	return out
}

// Len returns the number of records held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.items)
}
