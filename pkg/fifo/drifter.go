// SPDX-License-Identifier: MIT
package fifo

import (
	"fmt"
	"sync/atomic"
)

// DefaultXrunLimit is the number of consecutive xruns per side that a
// DriftTolerantQueue tolerates before it stops transmission.
const DefaultXrunLimit = 10

// XrunStats is a snapshot of the xrun accounting of a DriftTolerantQueue.
type XrunStats struct {
	WriterTotal        int `json:"writer_total"`
	ReaderTotal        int `json:"reader_total"`
	WriterSinceStart   int `json:"writer_since_start"`
	ReaderSinceStart   int `json:"reader_since_start"`
	WriterInSuccession int `json:"writer_in_succession"`
	ReaderInSuccession int `json:"reader_in_succession"`

	// Stops counts how often transmission was stopped, either because an
	// in-succession counter exceeded its limit or through Stop.
	Stops int `json:"stops"`

	WriterStarted bool `json:"writer_started"`
	ReaderStarted bool `json:"reader_started"`
}

// xruns are the counters of one side. Only that side increments them.
type xruns struct {
	total, sinceStart, inSuccession atomic.Int64
}

func (x *xruns) count() int64 {
	x.total.Add(1)
	x.sinceStart.Add(1)
	return x.inSuccession.Add(1)
}

func (x *xruns) restart() {
	x.sinceStart.Store(0)
	x.inSuccession.Store(0)
}

// DriftTolerantQueue connects a producer and a consumer that are driven by
// independent clocks. Neither side ever waits.
//
// Data is only transmitted after both sides have called Write or Read at
// least once. The reader first receives DesiredFill padding elements, which
// gives the queue its working fill level without writing them into the
// buffer. Afterwards the reader never drains the queue below MinimumFill:
// missing elements are replaced by padding and counted as a reader xrun.
// Elements that do not fit are dropped and counted as a writer xrun. When
// one side exceeds its limit of consecutive xruns, transmission stops and
// both sides restart on their next call with an empty buffer.
//
// The writer owns the write cursor and the reader owns the read cursor,
// the read cursor and the startup padding count. Everything the other side
// or an observer looks at is atomic, so no call takes a lock.
type DriftTolerantQueue[T any] struct {
	buf     []T
	n       slots
	read    atomic.Int64 // reader
	write   atomic.Int64 // writer
	padding T

	minFill     int
	desiredFill int

	// startup padding still to be delivered, reader
	startupZeros atomic.Int64

	writerStarted, readerStarted atomic.Bool
	writerLimit, readerLimit     atomic.Int64
	writer, reader               xruns
	stops                        atomic.Int64
}

// DrifterOption configures a DriftTolerantQueue.
type DrifterOption[T any] func(*DriftTolerantQueue[T])

// WithPadding sets the element emitted in place of missing data. The
// default is the zero value of T.
func WithPadding[T any](v T) DrifterOption[T] {
	return func(q *DriftTolerantQueue[T]) {
		q.padding = v
	}
}

// WithXrunLimits sets how many consecutive xruns each side tolerates.
// Negative limits are treated as zero.
func WithXrunLimits[T any](writer, reader int) DrifterOption[T] {
	return func(q *DriftTolerantQueue[T]) {
		q.SetXrunLimits(writer, reader)
	}
}

// NewDriftTolerantQueue creates a queue holding at most maximumFill
// elements. It requires 0 <= minimumFill <= desiredFill <= maximumFill and
// minimumFill < maximumFill.
func NewDriftTolerantQueue[T any](minimumFill, desiredFill, maximumFill int, opts ...DrifterOption[T]) (*DriftTolerantQueue[T], error) {
	if minimumFill < 0 || minimumFill >= maximumFill {
		return nil, fmt.Errorf("%w: minimum fill %d must be in [0, %d)", ErrConfiguration, minimumFill, maximumFill)
	}
	if desiredFill < minimumFill || desiredFill > maximumFill {
		return nil, fmt.Errorf("%w: desired fill %d must be in [%d, %d]", ErrConfiguration, desiredFill, minimumFill, maximumFill)
	}
	n, err := checkCapacity(maximumFill)
	if err != nil {
		return nil, err
	}
	q := &DriftTolerantQueue[T]{
		n:           n,
		minFill:     minimumFill,
		desiredFill: desiredFill,
	}
	q.writerLimit.Store(DefaultXrunLimit)
	q.readerLimit.Store(DefaultXrunLimit)
	q.startupZeros.Store(int64(desiredFill))
	for _, opt := range opts {
		opt(q)
	}
	q.buf = make([]T, int(n))
	q.pad(q.buf)
	return q, nil
}

// Write transmits as much of data as fits. Before both sides are started
// the data is discarded. The error is always nil. Writer only.
func (q *DriftTolerantQueue[T]) Write(data []T) error {
	if !q.writerStarted.Load() {
		q.writer.restart()
		q.writerStarted.Store(true)
	}
	if !q.readerStarted.Load() {
		return nil
	}
	w := int(q.write.Load())
	space := q.Capacity() - q.n.distance(int(q.read.Load()), w) - int(q.startupZeros.Load())
	k := min(max(space, 0), len(data))
	q.write.Store(int64(store(q.buf, w, data[:k])))

	if k < len(data) {
		if q.writer.count() > q.writerLimit.Load() {
			q.stop()
		}
	} else {
		q.writer.inSuccession.Store(0)
	}
	return nil
}

// Read fills buf. Startup padding is delivered before buffered data, and
// whatever would take the fill count below the minimum is padding too.
// Before both sides are started buf receives only padding. The error is
// always nil. Reader only.
func (q *DriftTolerantQueue[T]) Read(buf []T) error {
	if !q.readerStarted.Load() {
		// a stopped writer does not write, so the buffer can be emptied
		// from this side
		q.read.Store(q.write.Load())
		q.startupZeros.Store(int64(q.desiredFill))
		q.reader.restart()
		q.readerStarted.Store(true)
	}
	if !q.writerStarted.Load() {
		q.pad(buf)
		return nil
	}
	r := int(q.read.Load())
	zeros := int(q.startupZeros.Load())
	k := 0
	if fill := q.n.distance(r, int(q.write.Load())) + zeros; fill > q.minFill {
		k = min(fill-q.minFill, len(buf))
	}
	z := min(zeros, k)
	q.pad(buf[:z])
	q.startupZeros.Add(int64(-z))
	q.read.Store(int64(load(buf[z:k], q.buf, r)))
	q.pad(buf[k:])

	if k < len(buf) {
		if q.reader.count() > q.readerLimit.Load() {
			q.stop()
		}
	} else {
		q.reader.inSuccession.Store(0)
	}
	return nil
}

// Stop stops transmission. The next Write and Read restart the queue.
func (q *DriftTolerantQueue[T]) Stop() {
	q.stop()
}

// SetXrunLimits changes how many consecutive xruns each side tolerates.
func (q *DriftTolerantQueue[T]) SetXrunLimits(writer, reader int) {
	q.writerLimit.Store(int64(max(writer, 0)))
	q.readerLimit.Store(int64(max(reader, 0)))
}

// Stats returns a snapshot of the xrun counters. Counters of a side that is
// running at the same time may be one call apart.
func (q *DriftTolerantQueue[T]) Stats() XrunStats {
	return XrunStats{
		WriterTotal:        int(q.writer.total.Load()),
		ReaderTotal:        int(q.reader.total.Load()),
		WriterSinceStart:   int(q.writer.sinceStart.Load()),
		ReaderSinceStart:   int(q.reader.sinceStart.Load()),
		WriterInSuccession: int(q.writer.inSuccession.Load()),
		ReaderInSuccession: int(q.reader.inSuccession.Load()),
		Stops:              int(q.stops.Load()),
		WriterStarted:      q.writerStarted.Load(),
		ReaderStarted:      q.readerStarted.Load(),
	}
}

// FillCount returns the buffered elements plus the startup padding still
// to be delivered.
func (q *DriftTolerantQueue[T]) FillCount() int {
	return q.ringFill() + int(q.startupZeros.Load())
}

// AvailableSpace returns the free space minus the startup padding still to
// be delivered.
func (q *DriftTolerantQueue[T]) AvailableSpace() int {
	return max(q.Capacity()-q.FillCount(), 0)
}

func (q *DriftTolerantQueue[T]) MinimumFill() int { return q.minFill }
func (q *DriftTolerantQueue[T]) DesiredFill() int { return q.desiredFill }
func (q *DriftTolerantQueue[T]) Capacity() int    { return int(q.n) - 1 }

func (q *DriftTolerantQueue[T]) ringFill() int {
	return q.n.distance(int(q.read.Load()), int(q.write.Load()))
}

func (q *DriftTolerantQueue[T]) stop() {
	q.writerStarted.Store(false)
	q.readerStarted.Store(false)
	q.stops.Add(1)
}

func (q *DriftTolerantQueue[T]) pad(buf []T) {
	for i := range buf {
		buf[i] = q.padding
	}
}
