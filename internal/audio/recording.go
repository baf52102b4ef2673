// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"rtbuffer/internal/config"
	"rtbuffer/internal/log"
	"rtbuffer/pkg/fifo"
)

const defaultDrainInterval = 20 * time.Millisecond

var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes blocks from the hardware callback to a WAV file. The
// callback and the file writer run on independent clocks and meet in a
// drift tolerant queue: the writer drains it at the nominal sample rate
// measured on the wall clock, so a sound card running fast or slow causes
// counted xruns instead of unbounded growth or blocking.
type Recorder struct {
	cfg        config.RecordingConfig
	sampleRate float64
	channels   int
	rateFactor float64
	interval   time.Duration

	queue     *fifo.DriftTolerantQueue[float32]
	recording atomic.Bool
	written   atomic.Uint64

	mu   sync.Mutex // Start and Stop
	path string
	stop chan struct{}
	done chan error

	log *log.Logger
}

// RecorderStats is a snapshot of the recorder state. Fill levels are in
// frames.
type RecorderStats struct {
	Recording     bool           `json:"recording"`
	Path          string         `json:"path,omitempty"`
	FramesWritten uint64         `json:"frames_written"`
	Fill          int            `json:"fill"`
	DesiredFill   int            `json:"desired_fill"`
	Xruns         fifo.XrunStats `json:"xruns"`
}

type RecorderOption func(*Recorder)

// WithDriftPPM makes the file writer drain the queue ppm parts per million
// faster (or slower, if negative) than the nominal rate.
func WithDriftPPM(ppm float64) RecorderOption {
	return func(r *Recorder) { r.rateFactor = 1 + ppm/1e6 }
}

// WithDrainInterval sets how often the file writer wakes up.
func WithDrainInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRecorder creates a stopped recorder for blocks of channels
// interleaved samples.
func NewRecorder(cfg config.RecordingConfig, sampleRate float64, channels int, opts ...RecorderOption) (*Recorder, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: recorder with %d channels at %.0f Hz", fifo.ErrConfiguration, channels, sampleRate)
	}
	switch cfg.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: recorder bit depth %d", fifo.ErrConfiguration, cfg.BitDepth)
	}
	queue, err := fifo.NewDriftTolerantQueue(cfg.MinFill*channels, cfg.DesiredFill*channels, cfg.MaxFill*channels,
		fifo.WithXrunLimits[float32](cfg.XrunLimit, cfg.XrunLimit))
	if err != nil {
		return nil, fmt.Errorf("recorder queue: %w", err)
	}
	r := &Recorder{
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   channels,
		rateFactor: 1,
		interval:   defaultDrainInterval,
		queue:      queue,
		log:        log.For("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Write queues one block. It never blocks and is a no-op while stopped.
// Hardware callback only.
func (r *Recorder) Write(block []float32) {
	if !r.recording.Load() {
		return
	}
	_ = r.queue.Write(block)
}

func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// Start creates the file at path and starts the file writer. An empty path
// falls back to the configured path, then to a timestamped name in the
// configured output directory.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording.Load() {
		return ErrAlreadyRecording
	}

	if path == "" {
		path = r.cfg.Path
	}
	if path == "" {
		if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
		path = filepath.Join(r.cfg.OutputDir, time.Now().Format("20060102-150405")+".wav")
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	enc := wav.NewEncoder(file, int(r.sampleRate), r.cfg.BitDepth, r.channels, 1)

	r.path = path
	r.written.Store(0)
	r.stop = make(chan struct{})
	r.done = make(chan error, 1)
	r.recording.Store(true)
	go r.drain(file, enc, r.stop, r.done)

	r.log.Infof("recording to %s (%d channels, %d bit)", path, r.channels, r.cfg.BitDepth)
	return nil
}

// Stop finishes the file. It is a no-op when not recording.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		return nil
	}
	r.recording.Store(false)
	close(r.stop)
	err := <-r.done
	r.stop, r.done = nil, nil
	// the next Start resynchronises both sides
	r.queue.Stop()

	r.log.Infof("stopped recording %s after %d frames", r.path, r.written.Load())
	return err
}

func (r *Recorder) drain(file *os.File, enc *wav.Encoder, stop <-chan struct{}, done chan<- error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: r.channels, SampleRate: int(r.sampleRate)},
		SourceBitDepth: r.cfg.BitDepth,
	}
	var samples []float32
	start := time.Now()
	var consumed int64

	finish := func(err error) {
		if cerr := enc.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("finish recording: %w", cerr)
		}
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
		done <- err
	}

	for {
		select {
		case <-stop:
			finish(nil)
			return
		case <-ticker.C:
		}

		due := int64(math.Floor(time.Since(start).Seconds()*r.sampleRate*r.rateFactor)) - consumed
		if due <= 0 {
			continue
		}
		n := int(due) * r.channels
		if cap(samples) < n {
			samples = make([]float32, n)
			ib.Data = make([]int, n)
		}
		samples, ib.Data = samples[:n], ib.Data[:n]

		_ = r.queue.Read(samples)
		floatToPCM(ib.Data, samples, r.cfg.BitDepth)
		if err := enc.Write(ib); err != nil {
			r.recording.Store(false)
			r.log.Errorf("write %s: %v", r.path, err)
			finish(fmt.Errorf("write recording: %w", err))
			return
		}
		consumed += due
		r.written.Add(uint64(due))
	}
}

// Stats is safe to call from any goroutine.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()
	return RecorderStats{
		Recording:     r.recording.Load(),
		Path:          path,
		FramesWritten: r.written.Load(),
		Fill:          r.queue.FillCount() / r.channels,
		DesiredFill:   r.queue.DesiredFill() / r.channels,
		Xruns:         r.queue.Stats(),
	}
}

func (r *Recorder) Channels() int { return r.channels }

// StartRecording starts the engine's recorder. An empty path picks a
// timestamped file in the configured directory.
func (e *Engine) StartRecording(path string) error {
	if e.recorder == nil {
		return ErrNoRecorder
	}
	return e.recorder.Start(path)
}

func (e *Engine) StopRecording() error {
	if e.recorder == nil {
		return nil
	}
	return e.recorder.Stop()
}
