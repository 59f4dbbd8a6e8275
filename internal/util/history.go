package util

import "sync"

// History keeps the most recent entries of a log-like sequence. When full,
// Push overwrites the oldest entry. All methods are safe for concurrent use.
type History[T any] struct {
	mu    sync.RWMutex
	buf   []T
	head  int
	count int
}

// NewHistory creates a history holding up to size entries.
func NewHistory[T any](size int) *History[T] {
	if size < 1 {
		size = 1
	}
	return &History[T]{buf: make([]T, size)}
}

// Push appends an entry, evicting the oldest if full.
func (h *History[T]) Push(item T) {
	h.mu.Lock()
	h.buf[(h.head+h.count)%len(h.buf)] = item
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
	} else {
		h.count++
	}
	h.mu.Unlock()
}

// Snapshot returns the entries oldest first.
func (h *History[T]) Snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]T, h.count)
	for i := range out {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Last returns the newest entry.
func (h *History[T]) Last() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var zero T
	if h.count == 0 {
		return zero, false
	}
	return h.buf[(h.head+h.count-1)%len(h.buf)], true
}

// Reset forgets all entries.
func (h *History[T]) Reset() {
	h.mu.Lock()
	h.head, h.count = 0, 0
	h.mu.Unlock()
}

// Len returns the number of stored entries.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
