// SPDX-License-Identifier: MIT
/*
Package audio runs the real-time engine:
  - a duplex hardware stream (PortAudio, or a simulated clock) calls the
    engine once per outer block
  - the callback hands each block to an asynchronous double buffer whose
    worker runs the analysis pipeline at the inner block size
  - an optional recorder copies blocks through a drift tolerant queue to a
    WAV file on its own clock

Thread Safety:
  - the processing setup is an immutable snapshot picked up by the callback
    through a lock-free handoff queue
  - the callback never allocates and never takes a lock held by the
    configuration side
  - configuration methods (Reload, gate and recording control, Stats) may
    be called from any goroutine
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rtbuffer/internal/analysis"
	"rtbuffer/internal/config"
	"rtbuffer/internal/dbasync"
	"rtbuffer/internal/log"
	"rtbuffer/internal/transport"
	"rtbuffer/pkg/rtcfg"
)

// Onset detection for the level meter.
const (
	onsetThreshold = 0.05
	onsetRatio     = 1.5
)

var (
	ErrRunning        = errors.New("engine already running")
	ErrRestartNeeded  = errors.New("audio settings changed, restart required")
	ErrNoRecorder     = errors.New("recording is disabled")
	errEngineShutdown = errors.New("engine shutting down")
)

// snapshot is everything the callback needs for one configuration.
type snapshot struct {
	generation uint64
	cfg        *config.Config
	buffer     *dbasync.Buffer
	gate       *analysis.Gate
	meter      *analysis.Meter
	spectrum   *analysis.Spectrum // nil when disabled
}

// Engine is the real-time audio engine.
type Engine struct {
	session      string
	openFn       StreamOpener
	transport    transport.Transport
	recorderOpts []RecorderOption
	log          *log.Logger

	mu         sync.Mutex // configuration side
	cfg        *config.Config
	gate       analysis.GateSettings
	generation uint64
	stream     Stream
	runtime    *rtcfg.Runtime[snapshot]
	recorder   *Recorder
	closed     bool

	// written by the callback
	callbacks      atomic.Uint64
	callbackErrors atomic.Uint64
}

type Option func(*Engine)

// WithStreamOpener replaces the PortAudio stream.
func WithStreamOpener(open StreamOpener) Option {
	return func(e *Engine) { e.openFn = open }
}

// WithTransport sends periodic statistics and spectra to t.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithSession sets the session id reported in statistics. The default is
// a random UUID.
func WithSession(id string) Option {
	return func(e *Engine) { e.session = id }
}

// WithRecorderOptions passes options to the recorder.
func WithRecorderOptions(opts ...RecorderOption) Option {
	return func(e *Engine) { e.recorderOpts = append(e.recorderOpts, opts...) }
}

func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		session: uuid.NewString(),
		openFn:  OpenPortAudioStream,
		log:     log.For("engine"),
		cfg:     cfg,
		gate: analysis.GateSettings{
			Enabled:   cfg.Processing.Gate.Enabled,
			Threshold: float32(cfg.Processing.Gate.Threshold),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = transport.NewLoggingTransport()
	}
	e.runtime = rtcfg.New(e.release)

	if cfg.Recording.Enabled {
		rec, err := NewRecorder(cfg.Recording, cfg.Audio.SampleRate, e.recordChannels(cfg), e.recorderOpts...)
		if err != nil {
			return nil, err
		}
		e.recorder = rec
	}

	snap, err := e.buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	e.runtime.Push(snap)
	e.log.Infof("session %s: outer %d, inner %d, delay %d frames at %.0f Hz",
		e.session, cfg.Audio.FramesPerBuffer, cfg.Processing.InnerBlockSize, cfg.EffectiveDelay(), cfg.Audio.SampleRate)
	return e, nil
}

func (e *Engine) recordChannels(cfg *config.Config) int {
	if cfg.Recording.Source == config.SourceOutput {
		return cfg.Audio.OutputChannels
	}
	return cfg.Audio.InputChannels
}

// buildSnapshot starts a new double buffer for cfg. Caller holds e.mu or
// owns e exclusively.
func (e *Engine) buildSnapshot(cfg *config.Config) (*snapshot, error) {
	s := &snapshot{
		cfg:   cfg,
		gate:  analysis.NewGate(e.gate),
		meter: analysis.NewMeter(onsetThreshold, onsetRatio),
	}
	stages := []analysis.Stage{s.gate, s.meter}

	if sc := cfg.Processing.Spectrum; sc.Enabled {
		w, err := analysis.ParseWindowFunc(sc.Window)
		if err != nil {
			e.log.Warnf("%v, using %v", err, w)
		}
		s.spectrum, err = analysis.NewSpectrum(cfg.Processing.InnerBlockSize, cfg.Audio.SampleRate, w)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s.spectrum)
	}

	pipeline, err := analysis.NewPipeline(cfg.Audio.InputChannels, cfg.Audio.OutputChannels, stages...)
	if err != nil {
		return nil, err
	}
	s.buffer, err = dbasync.New(dbasync.Config{
		OuterSize:      cfg.Audio.FramesPerBuffer,
		InnerSize:      cfg.Processing.InnerBlockSize,
		Delay:          cfg.EffectiveDelay(),
		InputChannels:  cfg.Audio.InputChannels,
		OutputChannels: cfg.Audio.OutputChannels,
	}, pipeline)
	if err != nil {
		return nil, fmt.Errorf("double buffer: %w", err)
	}
	e.generation++
	s.generation = e.generation
	return s, nil
}

// release runs on the configuration side once the callback has moved on.
func (e *Engine) release(s *snapshot) {
	if err := s.buffer.Close(); err != nil {
		e.log.Warnf("generation %d: %v", s.generation, err)
		return
	}
	e.log.Debugf("released generation %d", s.generation)
}

// processStream is the hardware callback. It must not allocate, log or
// block on anything but the double buffer.
func (e *Engine) processStream(in, out []float32) {
	e.callbacks.Add(1)
	s, err := e.runtime.Poll()
	if err != nil {
		clear(out)
		return
	}
	frames := len(in) / s.cfg.Audio.InputChannels
	if err := s.buffer.Process(in, out, frames); err != nil {
		e.callbackErrors.Add(1)
		clear(out)
	}
	if e.recorder != nil {
		if s.cfg.Recording.Source == config.SourceOutput {
			e.recorder.Write(out)
		} else {
			e.recorder.Write(in)
		}
	}
}

// Start opens and starts the hardware stream.
func (e *Engine) Start() error {
	_, err := e.start()
	return err
}

// start returns the statistics interval of the configuration it started
// with, read under e.mu since Reload may replace e.cfg.
func (e *Engine) start() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errEngineShutdown
	}
	if e.stream != nil {
		return 0, ErrRunning
	}
	stream, err := e.openFn(e.cfg.Audio, e.processStream)
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return 0, fmt.Errorf("start stream: %w", err)
	}
	e.stream = stream
	if e.recorder != nil {
		if err := e.recorder.Start(""); err != nil {
			e.log.Errorf("%v", err)
		}
	}
	e.log.Infof("stream started")
	return e.cfg.Transport.StatsInterval, nil
}

// Run starts the engine, publishes statistics every interval until ctx is
// done and then closes the engine.
func (e *Engine) Run(ctx context.Context) error {
	interval, err := e.start()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.Close()
		case <-ticker.C:
			e.publish()
		}
	}
}

// publish releases abandoned snapshots and sends statistics.
func (e *Engine) publish() {
	e.mu.Lock()
	e.runtime.Cleanup()
	s := e.runtime.Peek()
	e.mu.Unlock()

	if err := e.transport.Send(e.Stats()); err != nil {
		e.log.Debugf("send stats: %v", err)
	}
	if s != nil && s.spectrum != nil {
		if err := e.transport.Send(s.spectrum.Snapshot(e.session, analysis.DefaultBands)); err != nil {
			e.log.Debugf("send spectrum: %v", err)
		}
	}
}

// Reload applies a new configuration. Processing settings take effect at
// the next hardware callback. Changing the audio section needs a restart
// and is rejected with ErrRestartNeeded; nothing is applied in that case.
func (e *Engine) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineShutdown
	}
	if cfg.Audio != e.cfg.Audio {
		return ErrRestartNeeded
	}
	if cfg.Recording != e.cfg.Recording {
		e.log.Warnf("recording settings changed, they apply after a restart")
		cfg.Recording = e.cfg.Recording
	}

	prev := e.gate
	e.gate = analysis.GateSettings{
		Enabled:   cfg.Processing.Gate.Enabled,
		Threshold: float32(cfg.Processing.Gate.Threshold),
	}
	snap, err := e.buildSnapshot(cfg)
	if err != nil {
		e.gate = prev
		return err
	}
	e.cfg = cfg
	e.runtime.Push(snap)
	e.log.Infof("reloaded: generation %d, inner %d, delay %d", snap.generation, cfg.Processing.InnerBlockSize, cfg.EffectiveDelay())
	return nil
}

// Close stops the stream, the recorder and all double buffers.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.stream != nil {
		if err := e.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
		if err := e.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		e.stream = nil
	}
	if e.recorder != nil {
		if err := e.recorder.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	// the callback has stopped, every snapshot can go
	e.runtime.Close()
	e.log.Infof("closed after %d callbacks", e.callbacks.Load())
	return errors.Join(errs...)
}

// Session returns the id reported in statistics and metrics.
func (e *Engine) Session() string { return e.session }

// Config returns the active configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Recorder returns the recorder, or nil when recording is disabled.
func (e *Engine) Recorder() *Recorder { return e.recorder }

// Stats is the periodic statistics message.
type Stats struct {
	Type           string                `json:"type"`
	Session        string                `json:"session"`
	Time           time.Time             `json:"time"`
	Generation     uint64                `json:"generation"`
	Callbacks      uint64                `json:"callbacks"`
	CallbackErrors uint64                `json:"callback_errors"`
	Buffer         dbasync.Stats         `json:"buffer"`
	Gate           analysis.GateSettings `json:"gate"`
	RMS            float64               `json:"rms"`
	Peak           float32               `json:"peak"`
	Onsets         uint64                `json:"onsets"`
	Recorder       *RecorderStats        `json:"recorder,omitempty"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := e.runtime.Peek()
	gate := e.gate
	e.mu.Unlock()

	st := Stats{
		Type:           "stats",
		Session:        e.session,
		Time:           time.Now(),
		Callbacks:      e.callbacks.Load(),
		CallbackErrors: e.callbackErrors.Load(),
		Gate:           gate,
	}
	if s != nil {
		st.Generation = s.generation
		st.Buffer = s.buffer.Stats()
		st.RMS = s.meter.RMS()
		st.Peak = s.meter.Peak()
		st.Onsets = s.meter.Onsets()
	}
	if e.recorder != nil {
		rs := e.recorder.Stats()
		st.Recorder = &rs
	}
	return st
}
