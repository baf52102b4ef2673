// SPDX-License-Identifier: MIT
package fifo

import "fmt"

// RingBuffer is a bounded FIFO of T without synchronisation. Use it from a
// single goroutine, or synchronise externally.
//
// Write and Read transfer all requested elements or none.
type RingBuffer[T any] struct {
	buf   []T
	n     slots
	read  int // next slot to read
	write int // next slot to write
}

// NewRingBuffer creates a ring buffer that holds up to capacity elements.
func NewRingBuffer[T any](capacity int) (*RingBuffer[T], error) {
	n, err := checkCapacity(capacity)
	if err != nil {
		return nil, err
	}
	return &RingBuffer[T]{buf: make([]T, int(n)), n: n}, nil
}

// NewRingBufferFilled creates a ring buffer whose unused storage is
// initialised with copies of fill.
func NewRingBufferFilled[T any](capacity int, fill T) (*RingBuffer[T], error) {
	r, err := NewRingBuffer[T](capacity)
	if err != nil {
		return nil, err
	}
	for i := range r.buf {
		r.buf[i] = fill
	}
	return r, nil
}

// Write appends data. It fails with ErrCapacity, leaving the buffer
// untouched, if data does not fit into the available space.
func (r *RingBuffer[T]) Write(data []T) error {
	if space := r.AvailableSpace(); len(data) > space {
		return fmt.Errorf("%w: cannot write %d elements, space for %d", ErrCapacity, len(data), space)
	}
	r.write = store(r.buf, r.write, data)
	return nil
}

// Read fills buf with the oldest len(buf) elements. It fails with
// ErrCapacity, leaving buf and the ring untouched, if fewer are stored.
func (r *RingBuffer[T]) Read(buf []T) error {
	if fill := r.FillCount(); len(buf) > fill {
		return fmt.Errorf("%w: cannot read %d elements, %d available", ErrCapacity, len(buf), fill)
	}
	r.read = load(buf, r.buf, r.read)
	return nil
}

// FillCount returns the number of stored elements.
func (r *RingBuffer[T]) FillCount() int {
	return r.n.distance(r.read, r.write)
}

// AvailableSpace returns how many elements can be written.
func (r *RingBuffer[T]) AvailableSpace() int {
	return r.Capacity() - r.FillCount()
}

// Capacity returns the maximum fill count.
func (r *RingBuffer[T]) Capacity() int {
	return int(r.n) - 1
}

// Clear discards all stored elements. Call it from the reader, or while the
// reader is inactive.
func (r *RingBuffer[T]) Clear() {
	r.read = r.write
}

// Clone returns an independent copy with the same contents and cursors.
func (r *RingBuffer[T]) Clone() *RingBuffer[T] {
	c := &RingBuffer[T]{buf: make([]T, len(r.buf)), n: r.n, read: r.read, write: r.write}
	copy(c.buf, r.buf)
	return c
}

// CopyFrom overwrites r with the contents and cursors of src. Both buffers
// must have the same capacity.
func (r *RingBuffer[T]) CopyFrom(src *RingBuffer[T]) error {
	if src.n != r.n {
		return fmt.Errorf("%w: copy from capacity %d into capacity %d", ErrConfiguration, src.Capacity(), r.Capacity())
	}
	copy(r.buf, src.buf)
	r.read, r.write = src.read, src.write
	return nil
}
