package util

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOverflow is returned by Push when the samples do not fit. Nothing is
	// written; the producer should wait for ShouldFill.
	ErrOverflow = errors.New("ringbuf: overflow")

	// ErrNotEnough is returned by Pop when fewer samples are buffered than
	// requested. It means "not yet", never "end of stream".
	ErrNotEnough = errors.New("ringbuf: not enough data")
)

// RingBuffer is a fixed-capacity circular sample store with one lane per
// audio channel. All lanes advance together. Push rejects instead of
// overwriting. All methods are safe for concurrent use.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	lanes    [][]T
	start    int
	length   int
	lowWater int
}

// NewRingBuffer creates a buffer holding capacity samples per channel.
// ShouldFill reports true while fewer than lowWater samples are buffered.
func NewRingBuffer[T any](channels, capacity, lowWater int) *RingBuffer[T] {
	if channels < 1 {
		channels = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	if lowWater > capacity {
		lowWater = capacity
	}
	lanes := make([][]T, channels)
	for i := range lanes {
		lanes[i] = make([]T, capacity)
	}
	return &RingBuffer[T]{lanes: lanes, lowWater: lowWater}
}

// Push appends one equal-length slice per channel.
func (r *RingBuffer[T]) Push(samples [][]T) error {
	if len(samples) != len(r.lanes) {
		return fmt.Errorf("ringbuf: push %d channels into %d", len(samples), len(r.lanes))
	}
	n := len(samples[0])
	for _, s := range samples[1:] {
		if len(s) != n {
			return fmt.Errorf("ringbuf: channel lengths differ (%d, %d)", n, len(s))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.lanes[0])
	if r.length+n > c {
		return ErrOverflow
	}
	end := (r.start + r.length) % c
	for ch, lane := range r.lanes {
		k := copy(lane[end:], samples[ch])
		copy(lane, samples[ch][k:])
	}
	r.length += n
	return nil
}

// Pop removes n samples per channel into freshly allocated slices.
func (r *RingBuffer[T]) Pop(n int) ([][]T, error) {
	out := make([][]T, len(r.lanes))
	for i := range out {
		out[i] = make([]T, n)
	}
	if err := r.PopInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// PopInto fills dst (one slice per channel, all len(dst[0]) long) and
// advances the read position. On ErrNotEnough dst is left untouched.
func (r *RingBuffer[T]) PopInto(dst [][]T) error {
	if len(dst) != len(r.lanes) {
		return fmt.Errorf("ringbuf: pop %d channels from %d", len(dst), len(r.lanes))
	}
	n := len(dst[0])

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.length < n {
		return ErrNotEnough
	}
	c := len(r.lanes[0])
	for ch, lane := range r.lanes {
		k := copy(dst[ch][:n], lane[r.start:])
		copy(dst[ch][k:n], lane)
	}
	r.start = (r.start + n) % c
	r.length -= n
	return nil
}

// Clear drops all buffered samples. Backing storage is not zeroed.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	r.start = 0
	r.length = 0
	r.mu.Unlock()
}

// Len returns the number of buffered samples per channel.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	n := r.length
	r.mu.RUnlock()
	return n
}

// Cap returns the capacity per channel.
func (r *RingBuffer[T]) Cap() int { return len(r.lanes[0]) }

// Channels returns the number of lanes.
func (r *RingBuffer[T]) Channels() int { return len(r.lanes) }

// Free returns how many samples per channel Push can still accept.
func (r *RingBuffer[T]) Free() int {
	r.mu.RLock()
	n := len(r.lanes[0]) - r.length
	r.mu.RUnlock()
	return n
}

// Contiguous returns how many buffered samples can be read from the current
// start without wrapping.
func (r *RingBuffer[T]) Contiguous() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return min(r.length, len(r.lanes[0])-r.start)
}

// ShouldFill reports whether the producer should pull more data.
func (r *RingBuffer[T]) ShouldFill() bool {
	r.mu.RLock()
	ok := r.length < r.lowWater
	r.mu.RUnlock()
	return ok
}
