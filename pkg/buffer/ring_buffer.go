package buffer

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrClosed is returned by Add after the buffer has been closed.
	ErrClosed = errors.New("buffer: closed")

	// ErrIteratorDone is returned by Next once the buffer is closed
	// and drained.
	ErrIteratorDone = errors.New("buffer: iterator done")
)

// RingBuffer is a fixed-capacity sliding window over the most recent
// values. Adding to a full buffer drops the oldest value instead of
// blocking, so producers never stall on a slow consumer. Safe for
// concurrent use.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	buf      []T
	start    int // index of the oldest value
	count    int
	closed   bool
}

// RingN creates a buffer holding at most size values.
func RingN[T any](size int) *RingBuffer[T] {
	rb := &RingBuffer[T]{buf: make([]T, size)}
	rb.nonEmpty = sync.NewCond(&rb.mu)
	return rb
}

// Add appends v, evicting the oldest value when the buffer is full.
func (rb *RingBuffer[T]) Add(v T) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return ErrClosed
	}
	if rb.count == len(rb.buf) {
		rb.buf[rb.start] = v
		rb.start = (rb.start + 1) % len(rb.buf)
	} else {
		rb.buf[(rb.start+rb.count)%len(rb.buf)] = v
		rb.count++
	}
	rb.nonEmpty.Signal()
	return nil
}

// Next removes and returns the oldest value, blocking while the
// buffer is empty. After Close it keeps returning buffered values
// until drained, then ErrIteratorDone.
func (rb *RingBuffer[T]) Next() (T, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for rb.count == 0 && !rb.closed {
		rb.nonEmpty.Wait()
	}
	var zero T
	if rb.count == 0 {
		return zero, ErrIteratorDone
	}
	v := rb.buf[rb.start]
	rb.buf[rb.start] = zero
	rb.start = (rb.start + 1) % len(rb.buf)
	rb.count--
	return v, nil
}

// Bytes returns a copy of the buffered values, oldest first.
func (rb *RingBuffer[T]) Bytes() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	end := rb.start + rb.count
	if end <= len(rb.buf) {
		return slices.Clone(rb.buf[rb.start:end])
	}
	return slices.Concat(rb.buf[rb.start:], rb.buf[:end%len(rb.buf)])
}

// Len returns the number of buffered values.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Reset discards all buffered values. The buffer stays usable.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.start, rb.count = 0, 0
}

// Close stops further writes and wakes blocked readers. Buffered
// values remain readable through Next and Bytes.
func (rb *RingBuffer[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if !rb.closed {
		rb.closed = true
		rb.nonEmpty.Broadcast()
	}
	return nil
}
