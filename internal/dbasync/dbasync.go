// SPDX-License-Identifier: MIT

// Package dbasync runs an inner block processor on its own goroutine
// behind a block size adapter. The hardware callback calls Process with the
// outer block size; the worker calls the Processor with the inner block
// size. The two sides meet in a pair of blocking queues, which delays the
// signal by a fixed number of frames.
package dbasync

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"rtbuffer/internal/log"
	"rtbuffer/pkg/bitint"
	"rtbuffer/pkg/fifo"
)

var (
	// ErrDelayTooSmall is returned by New when the worker could starve the
	// hardware side.
	ErrDelayTooSmall = errors.New("dbasync: delay too small")

	// ErrTerminated is injected into the worker by Close.
	ErrTerminated = errors.New("dbasync: processing terminates")
)

// Processor transforms one inner block. in holds InnerSize frames of
// InputChannels interleaved samples, out receives InnerSize frames of
// OutputChannels samples. Returning an error stops the worker.
type Processor interface {
	Process(in, out []float32) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(in, out []float32) error

func (f ProcessorFunc) Process(in, out []float32) error {
	return f(in, out)
}

// Config describes both sides of the double buffer. Sizes are in frames.
type Config struct {
	OuterSize      int
	InnerSize      int
	Delay          int
	InputChannels  int
	OutputChannels int
}

// MinimumDelay returns the smallest Delay accepted by New.
func MinimumDelay(innerSize, outerSize int) int {
	return bitint.MinimumDelay(innerSize, outerSize)
}

// Stats describes the fill state of a Buffer in frames.
type Stats struct {
	OuterSize  int `json:"outer_size"`
	InnerSize  int `json:"inner_size"`
	Delay      int `json:"delay"`
	InputFill  int `json:"input_fill"`
	OutputFill int `json:"output_fill"`
}

// Buffer is an asynchronous double buffer.
type Buffer struct {
	cfg     Config
	adapter *fifo.BlockSizeAdapter[float32]
	proc    Processor
	in, out []float32

	done      chan struct{}
	err       error // valid after done is closed
	closeOnce sync.Once
	log       *log.Logger
}

// New validates cfg, prefills Delay frames of silence and starts the
// worker goroutine.
func New(cfg Config, proc Processor) (*Buffer, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: nil processor", fifo.ErrConfiguration)
	}
	if minDelay := MinimumDelay(cfg.InnerSize, cfg.OuterSize); cfg.Delay < minDelay {
		return nil, fmt.Errorf("%w: delay %d, need at least %d for inner size %d and outer size %d",
			ErrDelayTooSmall, cfg.Delay, minDelay, cfg.InnerSize, cfg.OuterSize)
	}
	adapter, err := fifo.NewBlockSizeAdapter[float32](cfg.OuterSize, cfg.InnerSize, cfg.Delay,
		cfg.InputChannels, cfg.OutputChannels, 0)
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		cfg:     cfg,
		adapter: adapter,
		proc:    proc,
		in:      make([]float32, cfg.InnerSize*cfg.InputChannels),
		out:     make([]float32, cfg.InnerSize*cfg.OutputChannels),
		done:    make(chan struct{}),
		log:     log.For("dbasync"),
	}
	go b.run()
	b.log.Debugf("started: outer %d, inner %d, delay %d, channels %d/%d",
		cfg.OuterSize, cfg.InnerSize, cfg.Delay, cfg.InputChannels, cfg.OutputChannels)
	return b, nil
}

func (b *Buffer) run() {
	defer close(b.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		if err := b.adapter.Input(b.in); err != nil {
			b.fail(err)
			return
		}
		if err := b.proc.Process(b.in, b.out); err != nil {
			b.fail(fmt.Errorf("inner processing: %w", err))
			return
		}
		if err := b.adapter.Output(b.out); err != nil {
			b.fail(err)
			return
		}
	}
}

// fail releases the hardware side, which would otherwise wait forever for
// output.
func (b *Buffer) fail(err error) {
	b.err = err
	b.adapter.ProvokeOuterError(err)
	if errors.Is(err, ErrTerminated) {
		b.log.Debugf("worker stopped: %v", err)
		return
	}
	b.log.Errorf("worker failed: %v", err)
}

// Process exchanges frames frames with the worker. in must hold exactly
// frames*InputChannels samples and out frames*OutputChannels samples.
// Once the worker has stopped, Process returns its error.
func (b *Buffer) Process(in, out []float32, frames int) error {
	if frames > b.cfg.OuterSize {
		return fmt.Errorf("%w: %d frames exceed the outer block size %d", fifo.ErrConfiguration, frames, b.cfg.OuterSize)
	}
	if len(in) != frames*b.cfg.InputChannels || len(out) != frames*b.cfg.OutputChannels {
		return fmt.Errorf("%w: %d frames with %d input and %d output samples do not match %d/%d channels",
			fifo.ErrConfiguration, frames, len(in), len(out), b.cfg.InputChannels, b.cfg.OutputChannels)
	}
	return b.adapter.Process(in, out, frames)
}

// Close stops the worker and waits for it. A Process call blocked at that
// moment returns an error matching ErrTerminated.
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		b.adapter.ProvokeInnerError(ErrTerminated)
	})
	<-b.done
	if errors.Is(b.err, ErrTerminated) {
		return nil
	}
	return b.err
}

// Done is closed when the worker has stopped.
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

// Err returns the reason the worker stopped, or nil while it runs.
func (b *Buffer) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

func (b *Buffer) Config() Config {
	return b.cfg
}

// Stats returns the current fill levels.
func (b *Buffer) Stats() Stats {
	return Stats{
		OuterSize:  b.cfg.OuterSize,
		InnerSize:  b.cfg.InnerSize,
		Delay:      b.cfg.Delay,
		InputFill:  b.adapter.InputFillCount(),
		OutputFill: b.adapter.OutputFillCount(),
	}
}
