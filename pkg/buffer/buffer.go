// Package buffer holds classified readings between metrics pushes.
package buffer

import (
	"sync"

	"go.uber.org/zap"
)

// RingBuffer is a thread-safe circular buffer. When full, the oldest entry
// is overwritten.
type RingBuffer[T any] struct {
	mu      sync.Mutex
	data    []T
	head    int
	size    int
	dropped int
	logger  *zap.Logger
}

// New creates a RingBuffer holding at most capacity items.
func New[T any](capacity int, logger *zap.Logger) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:   make([]T, capacity),
		logger: logger,
	}
}

// Add appends item, overwriting the oldest entry when full.
func (rb *RingBuffer[T]) Add(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.push(item)
}

func (rb *RingBuffer[T]) push(item T) {
	if rb.size == len(rb.data) {
		rb.dropped++
		rb.logger.Warn("ring buffer full, overwriting oldest entry",
			zap.Int("capacity", len(rb.data)),
			zap.Int("dropped_total", rb.dropped))
	}

	rb.data[rb.head] = item
	rb.head = (rb.head + 1) % len(rb.data)
	if rb.size < len(rb.data) {
		rb.size++
	}
}

// Drain returns all buffered items, oldest first, and empties the buffer.
func (rb *RingBuffer[T]) Drain() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.drain()
}

func (rb *RingBuffer[T]) drain() []T {
	if rb.size == 0 {
		return nil
	}

	out := make([]T, rb.size)
	start := (rb.head - rb.size + len(rb.data)) % len(rb.data)
	for i := range out {
		out[i] = rb.data[(start+i)%len(rb.data)]
	}

	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.size = 0
	rb.head = 0
	return out
}

// Requeue puts items back in front of anything added since they were
// drained, so a failed push is retried in order. Overflow drops the oldest.
func (rb *RingBuffer[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	newer := rb.drain()
	for _, item := range items {
		rb.push(item)
	}
	for _, item := range newer {
		rb.push(item)
	}
}

// Len returns the number of buffered items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.data)
}

// Dropped returns how many items were overwritten since creation.
func (rb *RingBuffer[T]) Dropped() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}
