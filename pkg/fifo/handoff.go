// SPDX-License-Identifier: MIT
package fifo

import "sync/atomic"

type handoffNode[T any] struct {
	next      atomic.Pointer[handoffNode[T]]
	abandoned atomic.Bool
	value     *T
}

// HandoffQueue publishes values from a writer goroutine to a reader
// goroutine without locks. The reader side (Poll, Poll1) never allocates;
// the writer side (Push, RemoveAbandoned, RemoveAll, Newest) may.
//
// The reader marks every node it has moved past as abandoned. Only the
// writer unlinks nodes, and only abandoned ones, so a value returned by a
// poll stays valid until the reader polls again and finds a newer one.
type HandoffQueue[T any] struct {
	root    atomic.Pointer[handoffNode[T]] // oldest node not yet unlinked
	current *handoffNode[T]                // reader only: node last returned
	tail    *handoffNode[T]                // writer only: newest node
	release func(*T)
}

// HandoffOption configures a HandoffQueue.
type HandoffOption[T any] func(*HandoffQueue[T])

// WithRelease registers a function the writer calls for every value it
// unlinks, for values that own resources beyond memory.
func WithRelease[T any](f func(*T)) HandoffOption[T] {
	return func(q *HandoffQueue[T]) {
		q.release = f
	}
}

// NewHandoffQueue returns an empty queue.
func NewHandoffQueue[T any](opts ...HandoffOption[T]) *HandoffQueue[T] {
	q := &HandoffQueue[T]{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends v and unlinks every node the reader has abandoned.
// Writer only.
func (q *HandoffQueue[T]) Push(v *T) {
	n := &handoffNode[T]{value: v}
	if q.tail == nil {
		q.root.Store(n)
	} else {
		q.tail.next.Store(n)
	}
	q.tail = n
	q.RemoveAbandoned()
}

// Poll returns the newest pushed value, skipping intermediate ones, or nil
// if nothing was pushed yet. Reader only.
func (q *HandoffQueue[T]) Poll() *T {
	if q.current == nil {
		if q.current = q.root.Load(); q.current == nil {
			return nil
		}
	}
	for next := q.current.next.Load(); next != nil; next = q.current.next.Load() {
		q.current.abandoned.Store(true)
		q.current = next
	}
	return q.current.value
}

// Poll1 advances by at most one value per call, so that every pushed value
// is returned once in order. It returns nil if nothing was pushed yet.
// Reader only.
func (q *HandoffQueue[T]) Poll1() *T {
	if q.current == nil {
		if q.current = q.root.Load(); q.current == nil {
			return nil
		}
		return q.current.value
	}
	if next := q.current.next.Load(); next != nil {
		q.current.abandoned.Store(true)
		q.current = next
	}
	return q.current.value
}

// Newest returns the value of the latest Push without touching the reader
// state, or nil. Writer only.
func (q *HandoffQueue[T]) Newest() *T {
	if q.tail == nil {
		return nil
	}
	return q.tail.value
}

// RemoveAbandoned unlinks all leading nodes the reader has moved past.
// Writer only.
func (q *HandoffQueue[T]) RemoveAbandoned() {
	for r := q.root.Load(); r != nil && r.abandoned.Load(); r = q.root.Load() {
		q.root.Store(r.next.Load())
		q.free(r)
	}
}

// RemoveAll unlinks every node and resets the reader position. The reader
// must not be active. Writer only.
func (q *HandoffQueue[T]) RemoveAll() {
	r := q.root.Swap(nil)
	for r != nil {
		next := r.next.Load()
		q.free(r)
		r = next
	}
	q.current, q.tail = nil, nil
}

func (q *HandoffQueue[T]) free(n *handoffNode[T]) {
	if q.release != nil && n.value != nil {
		q.release(n.value)
	}
	n.value = nil
}
