// SPDX-License-Identifier: MIT
package fifo

import (
	"context"
	"sync"
)

// BlockingQueue is a RingBuffer shared by one writer and one reader
// goroutine. Write waits for space and Read waits for data; both transfer
// as much as they can before waiting, so a transfer larger than the
// capacity completes in several steps.
//
// A wait has no timeout. Another goroutine ends it by injecting an error
// for the waiting side with SetError or CancelOn.
type BlockingQueue[T any] struct {
	mu        sync.Mutex
	increased sync.Cond // signalled when data was written
	decreased sync.Cond // signalled when data was read
	ring      *RingBuffer[T]
	cancelled [2]*CancelledError
}

// NewBlockingQueue creates a queue that buffers up to capacity elements.
func NewBlockingQueue[T any](capacity int) (*BlockingQueue[T], error) {
	ring, err := NewRingBuffer[T](capacity)
	if err != nil {
		return nil, err
	}
	q := &BlockingQueue[T]{ring: ring}
	q.increased.L = &q.mu
	q.decreased.L = &q.mu
	return q, nil
}

// Write appends all of data, waiting for the reader to make room as often
// as needed. It returns a *CancelledError if an error is injected for the
// writer before the transfer completes; elements transferred up to that
// point stay in the queue.
func (q *BlockingQueue[T]) Write(data []T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if c := q.cancelled[SideWriter]; c != nil {
			return c
		}
		if n := min(q.ring.AvailableSpace(), len(data)); n > 0 {
			q.ring.write = store(q.ring.buf, q.ring.write, data[:n])
			data = data[n:]
			q.increased.Signal()
		}
		if len(data) == 0 {
			return nil
		}
		q.decreased.Wait()
	}
}

// Read fills buf, waiting for the writer as often as needed. It returns a
// *CancelledError if an error is injected for the reader before buf is
// complete.
func (q *BlockingQueue[T]) Read(buf []T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if c := q.cancelled[SideReader]; c != nil {
			return c
		}
		if n := min(q.ring.FillCount(), len(buf)); n > 0 {
			q.ring.read = load(buf[:n], q.ring.buf, q.ring.read)
			buf = buf[n:]
			q.decreased.Signal()
		}
		if len(buf) == 0 {
			return nil
		}
		q.increased.Wait()
	}
}

// SetError injects err for one side of the queue and wakes that side if it
// is waiting. All later transfers of that side fail until the slot is
// cleared by passing a nil err.
func (q *BlockingQueue[T]) SetError(side Side, err error) {
	side &= 1
	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil {
		q.cancelled[side] = nil
		return
	}
	q.cancelled[side] = &CancelledError{Side: side, Cause: err}
	if side == SideReader {
		q.increased.Broadcast()
	} else {
		q.decreased.Broadcast()
	}
}

// CancelOn injects the cause of ctx for side once ctx is done. The returned
// function disarms the watchdog; it reports false if the error was already
// injected.
func (q *BlockingQueue[T]) CancelOn(ctx context.Context, side Side) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		q.SetError(side, context.Cause(ctx))
	})
}

func (q *BlockingQueue[T]) FillCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.FillCount()
}

func (q *BlockingQueue[T]) AvailableSpace() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.AvailableSpace()
}

// Capacity returns the maximum fill count.
func (q *BlockingQueue[T]) Capacity() int {
	return q.ring.Capacity()
}
