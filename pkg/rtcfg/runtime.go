// SPDX-License-Identifier: MIT

// Package rtcfg hands immutable runtime configuration snapshots from a
// configuration goroutine to a real-time processing goroutine.
//
// The configuration goroutine builds a complete snapshot and calls Push.
// The processing goroutine calls Poll at the start of every block and uses
// the returned snapshot, or Current, until the next Poll. Poll never blocks
// and never allocates.
package rtcfg

import (
	"errors"

	"rtbuffer/pkg/fifo"
)

// ErrNoConfig is returned by Poll while no valid snapshot has been pushed.
var ErrNoConfig = errors.New("rtcfg: no valid configuration available")

// Runtime holds the snapshots of one configurable component.
type Runtime[T any] struct {
	q   *fifo.HandoffQueue[T]
	cur *T
}

// New creates an empty holder. release, if not nil, is called on the
// configuration goroutine for every snapshot that is no longer referenced
// by the processing goroutine.
func New[T any](release func(*T)) *Runtime[T] {
	var opts []fifo.HandoffOption[T]
	if release != nil {
		opts = append(opts, fifo.WithRelease(release))
	}
	return &Runtime[T]{q: fifo.NewHandoffQueue(opts...)}
}

// Push publishes cfg and releases abandoned snapshots. Pushing nil
// invalidates the configuration until the next non-nil Push.
// Configuration goroutine only.
func (r *Runtime[T]) Push(cfg *T) {
	r.q.Push(cfg)
}

// Poll returns the newest snapshot and remembers it as Current.
// Processing goroutine only.
func (r *Runtime[T]) Poll() (*T, error) {
	r.cur = r.q.Poll()
	if r.cur == nil {
		return nil, ErrNoConfig
	}
	return r.cur, nil
}

// Current returns the snapshot of the last successful Poll, or nil.
// Processing goroutine only.
func (r *Runtime[T]) Current() *T {
	return r.cur
}

// Peek returns the newest pushed snapshot without affecting the processing
// goroutine. Configuration goroutine only.
func (r *Runtime[T]) Peek() *T {
	return r.q.Newest()
}

// Cleanup releases abandoned snapshots without pushing a new one.
// Configuration goroutine only.
func (r *Runtime[T]) Cleanup() {
	r.q.RemoveAbandoned()
}

// Close releases all snapshots. The processing goroutine must have
// stopped polling.
func (r *Runtime[T]) Close() {
	r.q.RemoveAll()
	r.cur = nil
}
