// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"rtbuffer/internal/config"
)

// Callback receives one hardware block. in and out hold interleaved
// frames and are only valid during the call.
type Callback func(in, out []float32)

// Stream is a running source of hardware blocks.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// StreamOpener opens a stream that calls cb once per block of
// cfg.FramesPerBuffer frames.
type StreamOpener func(cfg config.AudioConfig, cb Callback) (Stream, error)

// OpenPortAudioStream opens a duplex PortAudio stream. PortAudio must be
// initialised.
func OpenPortAudioStream(cfg config.AudioConfig, cb Callback) (Stream, error) {
	in, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	out, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, err
	}

	inLatency, outLatency := in.DefaultHighInputLatency, out.DefaultHighOutputLatency
	if cfg.LowLatency {
		inLatency, outLatency = in.DefaultLowInputLatency, out.DefaultLowOutputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: cfg.InputChannels,
			Latency:  inLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   out,
			Channels: cfg.OutputChannels,
			Latency:  outLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, func(in, out []float32) { cb(in, out) })
	if err != nil {
		return nil, fmt.Errorf("open stream on %q/%q: %w", in.Name, out.Name, err)
	}
	return stream, nil
}

// SimulatedStream drives a callback from a ticker at the nominal block
// period instead of a sound card. Source fills every input block and
// returns false when it has no more data; Sink receives every output
// block. Both run on the stream goroutine.
type SimulatedStream struct {
	cfg    config.AudioConfig
	cb     Callback
	source func(in []float32) bool
	sink   func(out []float32)
	period time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	done    chan struct{}
	once    sync.Once
	blocks  uint64
}

// NewSimulatedOpener returns a StreamOpener for SimulatedStreams. A nil
// source produces silence forever, a nil sink discards the output.
func NewSimulatedOpener(source func(in []float32) bool, sink func(out []float32)) (StreamOpener, func() *SimulatedStream) {
	var last *SimulatedStream
	var mu sync.Mutex
	open := func(cfg config.AudioConfig, cb Callback) (Stream, error) {
		s := &SimulatedStream{
			cfg:    cfg,
			cb:     cb,
			source: source,
			sink:   sink,
			period: time.Duration(float64(time.Second) * float64(cfg.FramesPerBuffer) / cfg.SampleRate),
			done:   make(chan struct{}),
		}
		mu.Lock()
		last = s
		mu.Unlock()
		return s, nil
	}
	opened := func() *SimulatedStream {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
	return open, opened
}

func (s *SimulatedStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return fmt.Errorf("simulated stream already started")
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run(s.stop, s.stopped)
	return nil
}

func (s *SimulatedStream) run(stop, stopped chan struct{}) {
	defer close(stopped)
	in := make([]float32, s.cfg.FramesPerBuffer*s.cfg.InputChannels)
	out := make([]float32, s.cfg.FramesPerBuffer*s.cfg.OutputChannels)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if s.source != nil && !s.source(in) {
			s.once.Do(func() { close(s.done) })
			return
		}
		s.cb(in, out)
		s.mu.Lock()
		s.blocks++
		s.mu.Unlock()
		if s.sink != nil {
			s.sink(out)
		}
	}
}

func (s *SimulatedStream) Stop() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

func (s *SimulatedStream) Close() error {
	return s.Stop()
}

// Done is closed when the source runs dry.
func (s *SimulatedStream) Done() <-chan struct{} {
	return s.done
}

// Blocks returns the number of callbacks made.
func (s *SimulatedStream) Blocks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// Period is the nominal block period.
func (s *SimulatedStream) Period() time.Duration {
	return s.period
}
