// SPDX-License-Identifier: MIT

// Package analysis holds the processors that run on the inner side of the
// double buffer, at the inner block size, on the worker goroutine.
package analysis

import (
	"fmt"

	"rtbuffer/internal/dbasync"
	"rtbuffer/pkg/fifo"
)

// Stage processes one block in place. block holds interleaved frames of
// channels samples. Stages run on the worker goroutine and must not block.
type Stage interface {
	Apply(block []float32, channels int)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(block []float32, channels int)

func (f StageFunc) Apply(block []float32, channels int) { f(block, channels) }

// Pipeline runs stages over a copy of the input block and maps the result
// to the output channels. Output channel c carries input channel c modulo
// the input channel count, so mono input is duplicated to every output.
type Pipeline struct {
	inCh, outCh int
	work        []float32
	stages      []Stage
}

var _ dbasync.Processor = (*Pipeline)(nil)

func NewPipeline(inputChannels, outputChannels int, stages ...Stage) (*Pipeline, error) {
	if inputChannels <= 0 || outputChannels <= 0 {
		return nil, fmt.Errorf("%w: pipeline channels %d/%d", fifo.ErrConfiguration, inputChannels, outputChannels)
	}
	return &Pipeline{inCh: inputChannels, outCh: outputChannels, stages: stages}, nil
}

// Process implements dbasync.Processor.
func (p *Pipeline) Process(in, out []float32) error {
	frames := len(in) / p.inCh
	if len(in) != frames*p.inCh || len(out) != frames*p.outCh {
		return fmt.Errorf("%w: %d input and %d output samples for %d/%d channels",
			fifo.ErrConfiguration, len(in), len(out), p.inCh, p.outCh)
	}
	if cap(p.work) < len(in) {
		p.work = make([]float32, len(in))
	}
	work := p.work[:len(in)]
	copy(work, in)

	for _, s := range p.stages {
		s.Apply(work, p.inCh)
	}

	if p.inCh == p.outCh {
		copy(out, work)
		return nil
	}
	for f := range frames {
		src := work[f*p.inCh : (f+1)*p.inCh]
		dst := out[f*p.outCh : (f+1)*p.outCh]
		for c := range dst {
			dst[c] = src[c%p.inCh]
		}
	}
	return nil
}

func (p *Pipeline) Stages() []Stage {
	return p.stages
}
