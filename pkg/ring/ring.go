// Package ring provides a generic, thread-safe bounded ring that retains
// the most recent N items, evicting the oldest on overflow.
//
// Unlike a consume-queue, items stay readable after they are appended:
// the readings buffers of the stats engine need both "latest value" access
// and ordered iteration for snapshots. Statistics are always collected;
// Prometheus metrics are optional via WithMetrics().
package ring

import (
	"sync"

	"github.com/Alex-Pennington/splitterstats/errors"
)

// Ring is a fixed-capacity buffer of the most recent items of type T.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	stats    *Statistics
	metrics  *ringMetrics
}

// New creates a ring with the given capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func New[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		capacity = 1 // Minimum capacity
	}

	opts := applyOptions(options...)

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "ring", "New", "metrics registration")
		}
	}

	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
	}, nil
}

// Append adds an item, evicting the oldest when the ring is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicting := r.size == r.capacity

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if !evicting {
		r.size++
	}

	r.stats.Append()
	if evicting {
		r.stats.Evict()
	}
	r.stats.UpdateSize(int64(r.size))

	if r.metrics != nil {
		r.metrics.recordAppend(r.size, r.capacity, evicting)
	}
}

// Latest returns the most recently appended item.
// Returns the zero value and false when the ring is empty.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.items[idx], true
}

// Oldest returns the least recently appended item still retained.
func (r *Ring[T]) Oldest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	idx := (r.head - r.size + r.capacity) % r.capacity
	return r.items[idx], true
}

// Items returns a copy of the retained items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return nil
	}
	out := make([]T, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Len returns the current number of retained items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the ring can hold.
func (r *Ring[T]) Capacity() int {
	return r.capacity // immutable, no lock needed
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0

	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.capacity)
	}
}

// Stats returns ring statistics (always available for observability).
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
