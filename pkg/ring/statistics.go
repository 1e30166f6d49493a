package ring

import "sync/atomic"

// Statistics tracks ring usage counters. All methods are safe for
// concurrent use; counters are monotonic except CurrentSize.
type Statistics struct {
	appends     atomic.Int64
	evictions   atomic.Int64
	currentSize atomic.Int64
	maxSize     atomic.Int64
}

// NewStatistics creates an empty statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Append records an item append.
func (s *Statistics) Append() {
	s.appends.Add(1)
}

// Evict records an overflow eviction.
func (s *Statistics) Evict() {
	s.evictions.Add(1)
}

// UpdateSize records the current ring size, tracking the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.currentSize.Store(size)
	for {
		max := s.maxSize.Load()
		if size <= max || s.maxSize.CompareAndSwap(max, size) {
			return
		}
	}
}

// Appends returns the total number of appends.
func (s *Statistics) Appends() int64 { return s.appends.Load() }

// Evictions returns the total number of overflow evictions.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the last recorded size.
func (s *Statistics) CurrentSize() int64 { return s.currentSize.Load() }

// MaxSize returns the high-water mark of the ring size.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }
