// SPDX-License-Identifier: MIT
package fifo

import (
	"fmt"
	"sync"
)

// Queue is the single-producer single-consumer transfer contract shared by
// BlockingQueue and DriftTolerantQueue.
type Queue[T any] interface {
	Write(data []T) error
	Read(buf []T) error
	FillCount() int
	AvailableSpace() int
}

// Canceller is implemented by queues whose transfers can be aborted by
// injecting an error.
type Canceller interface {
	SetError(side Side, err error)
}

// QueueFactory creates a queue holding up to capacity elements. The queue
// must accept a write before its reader has read anything, otherwise the
// adapter cannot prefill the delay.
type QueueFactory[T any] func(capacity int) (Queue[T], error)

// BlockingQueueFactory is the default QueueFactory of a BlockSizeAdapter.
func BlockingQueueFactory[T any](capacity int) (Queue[T], error) {
	q, err := NewBlockingQueue[T](capacity)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// AdapterOption configures a BlockSizeAdapter.
type AdapterOption[T any] func(*BlockSizeAdapter[T])

// WithQueueFactory replaces the queue implementation of both directions.
func WithQueueFactory[T any](f QueueFactory[T]) AdapterOption[T] {
	return func(a *BlockSizeAdapter[T]) {
		a.factory = f
	}
}

// BlockSizeAdapter bridges an outer side that exchanges up to OuterSize
// frames per call with an inner side that exchanges exactly InnerSize
// frames per call. Samples are channel-interleaved; the input direction
// carries InputChannels and the output direction OutputChannels samples
// per frame.
//
// The input queue starts with Delay frames of fill data. With the default
// blocking queues, neither side waits forever as long as
// Delay >= InnerSize - gcd(InnerSize, OuterSize).
type BlockSizeAdapter[T any] struct {
	outer, inner, delay int
	inCh, outCh         int
	size                int // queue capacity in frames

	factory QueueFactory[T]
	in, out Queue[T]

	mu                 sync.Mutex
	innerErr, outerErr error
}

// NewBlockSizeAdapter creates the adapter and prefills the input queue with
// delay frames of fill.
func NewBlockSizeAdapter[T any](outerSize, innerSize, delay, inputChannels, outputChannels int, fill T, opts ...AdapterOption[T]) (*BlockSizeAdapter[T], error) {
	switch {
	case inputChannels <= 0 || outputChannels <= 0:
		return nil, fmt.Errorf("%w: channel counts must be positive, got %d in and %d out", ErrConfiguration, inputChannels, outputChannels)
	case outerSize <= 0 || innerSize <= 0:
		return nil, fmt.Errorf("%w: block sizes must be positive, got outer %d and inner %d", ErrConfiguration, outerSize, innerSize)
	case delay < 0:
		return nil, fmt.Errorf("%w: negative delay %d", ErrConfiguration, delay)
	}
	a := &BlockSizeAdapter[T]{
		outer:   outerSize,
		inner:   innerSize,
		delay:   delay,
		inCh:    inputChannels,
		outCh:   outputChannels,
		size:    delay + max(outerSize, innerSize),
		factory: BlockingQueueFactory[T],
	}
	for _, opt := range opts {
		opt(a)
	}
	var err error
	if a.in, err = a.factory(a.size * a.inCh); err != nil {
		return nil, fmt.Errorf("input queue: %w", err)
	}
	if a.out, err = a.factory(a.size * a.outCh); err != nil {
		return nil, fmt.Errorf("output queue: %w", err)
	}
	prefill := make([]T, delay*inputChannels)
	for i := range prefill {
		prefill[i] = fill
	}
	if err := a.in.Write(prefill); err != nil {
		return nil, fmt.Errorf("prefill input queue: %w", err)
	}
	// queues that discard writes until their reader starts cannot carry
	// the delay
	if fill := a.in.FillCount(); fill != len(prefill) {
		return nil, fmt.Errorf("%w: input queue holds %d of %d prefill samples", ErrConfiguration, fill, len(prefill))
	}
	return a, nil
}

// Process is called by the outer side. It queues frames frames of input
// and then takes frames frames of output.
func (a *BlockSizeAdapter[T]) Process(input, output []T, frames int) error {
	if frames < 0 || frames > a.outer {
		return fmt.Errorf("%w: process called with %d frames, outer block size is %d", ErrConfiguration, frames, a.outer)
	}
	ni, no := frames*a.inCh, frames*a.outCh
	if len(input) < ni || len(output) < no {
		return fmt.Errorf("%w: %d frames need %d input and %d output samples, got %d and %d",
			ErrCapacity, frames, ni, no, len(input), len(output))
	}
	if err := a.in.Write(input[:ni]); err != nil {
		return err
	}
	return a.out.Read(output[:no])
}

// Input is called by the inner side to take one inner block of input.
func (a *BlockSizeAdapter[T]) Input(buf []T) error {
	n := a.inner * a.inCh
	if len(buf) < n {
		return fmt.Errorf("%w: input block needs %d samples, got %d", ErrCapacity, n, len(buf))
	}
	return a.in.Read(buf[:n])
}

// Output is called by the inner side to queue one inner block of output.
func (a *BlockSizeAdapter[T]) Output(buf []T) error {
	n := a.inner * a.outCh
	if len(buf) < n {
		return fmt.Errorf("%w: output block needs %d samples, got %d", ErrCapacity, n, len(buf))
	}
	return a.out.Write(buf[:n])
}

// ProvokeInnerError makes every current and future Input and Output fail
// with err. The outer side calls it to stop the inner side.
func (a *BlockSizeAdapter[T]) ProvokeInnerError(err error) {
	a.mu.Lock()
	a.innerErr = err
	a.mu.Unlock()
	setError(a.in, SideReader, err)
	setError(a.out, SideWriter, err)
}

// ProvokeOuterError makes every current and future Process fail with err.
// The inner side calls it when it cannot continue.
func (a *BlockSizeAdapter[T]) ProvokeOuterError(err error) {
	a.mu.Lock()
	a.outerErr = err
	a.mu.Unlock()
	setError(a.in, SideWriter, err)
	setError(a.out, SideReader, err)
}

func setError[T any](q Queue[T], side Side, err error) {
	if c, ok := q.(Canceller); ok {
		c.SetError(side, err)
	}
}

// InnerError returns the error passed to the last ProvokeInnerError.
func (a *BlockSizeAdapter[T]) InnerError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.innerErr
}

// OuterError returns the error passed to the last ProvokeOuterError.
func (a *BlockSizeAdapter[T]) OuterError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outerErr
}

func (a *BlockSizeAdapter[T]) OuterSize() int      { return a.outer }
func (a *BlockSizeAdapter[T]) InnerSize() int      { return a.inner }
func (a *BlockSizeAdapter[T]) Delay() int          { return a.delay }
func (a *BlockSizeAdapter[T]) QueueSize() int      { return a.size }
func (a *BlockSizeAdapter[T]) InputChannels() int  { return a.inCh }
func (a *BlockSizeAdapter[T]) OutputChannels() int { return a.outCh }

// InputFillCount returns the frames waiting for the inner side.
func (a *BlockSizeAdapter[T]) InputFillCount() int { return a.in.FillCount() / a.inCh }

// OutputFillCount returns the frames waiting for the outer side.
func (a *BlockSizeAdapter[T]) OutputFillCount() int { return a.out.FillCount() / a.outCh }

func (a *BlockSizeAdapter[T]) InputSpace() int  { return a.in.AvailableSpace() / a.inCh }
func (a *BlockSizeAdapter[T]) OutputSpace() int { return a.out.AvailableSpace() / a.outCh }
