// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rtbuffer/internal/audio"
	"rtbuffer/internal/config"
	"rtbuffer/pkg/utils"
)

type simulateOptions struct {
	driftPPM  float64
	input     string
	output    string
	duration  time.Duration
	frequency float64
}

func newSimulateCommand(root *rootOptions) *cobra.Command {
	s := &simulateOptions{}
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the engine against a simulated sound card",
		Long: `Run the engine without audio hardware. A ticker at the outer block
period plays the sound card, the processed output is recorded through the
drift tolerant queue, and the file writer runs --drift-ppm off the nominal
rate. The xrun counters are reported at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, root, s)
		},
	}

	f := simulateCmd.Flags()
	f.Float64Var(&s.driftPPM, "drift-ppm", 0,
		"Clock offset of the file writer in parts per million")
	f.StringVarP(&s.input, "input", "i", "",
		"WAV file fed to the input. A sine wave is generated if empty")
	f.StringVarP(&s.output, "output", "o", "",
		"WAV file receiving the processed output. Discarded if empty")
	f.DurationVar(&s.duration, "duration", 5*time.Second,
		"Run time, 0 runs until the input file ends")
	f.Float64Var(&s.frequency, "frequency", 440,
		"Frequency of the generated sine in Hz")
	return simulateCmd
}

func runSimulation(cmd *cobra.Command, root *rootOptions, s *simulateOptions) error {
	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}

	var source func(in []float32) bool
	if s.input != "" {
		pcm, err := audio.ReadWAV(s.input)
		if err != nil {
			return err
		}
		cfg.Audio.SampleRate = float64(pcm.SampleRate)
		cfg.Audio.InputChannels = pcm.Channels
		source = pcmSource(pcm)
	} else {
		if s.duration <= 0 {
			return fmt.Errorf("%w: --duration must be positive without --input", config.ErrInvalid)
		}
		source = sineSource(cfg.Audio.InputChannels, cfg.Audio.SampleRate, s.frequency)
	}

	path := s.output
	if path == "" {
		dir, err := os.MkdirTemp("", "rtbuffer-simulate-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "output.wav")
	}
	cfg.Recording.Enabled = true
	cfg.Recording.Source = config.SourceOutput
	cfg.Recording.Path = path
	cfg.Transport.WebSocketEnabled = false
	cfg.Transport.MetricsEnabled = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	exhausted := make(chan struct{})
	var once sync.Once
	open, _ := audio.NewSimulatedOpener(func(in []float32) bool {
		if source(in) {
			return true
		}
		once.Do(func() { close(exhausted) })
		return false
	}, nil)

	engine, err := audio.NewEngine(cfg,
		audio.WithStreamOpener(open),
		audio.WithRecorderOptions(audio.WithDriftPPM(s.driftPPM)))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if s.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.duration)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(ctx)
	defer finish()

	g.Go(func() error { return engine.Run(runCtx) })
	g.Go(func() error {
		defer finish()
		select {
		case <-exhausted:
			logger.Infof("input exhausted")
		case <-runCtx.Done():
		}
		return nil
	})
	err = g.Wait()

	report(cmd.OutOrStdout(), engine, s)
	return err
}

// pcmSource plays pcm once, padding the last block with silence.
func pcmSource(pcm *audio.PCM) func(in []float32) bool {
	pos := 0
	return func(in []float32) bool {
		if pos >= len(pcm.Samples) {
			return false
		}
		n := copy(in, pcm.Samples[pos:])
		clear(in[n:])
		pos += n
		return true
	}
}

// sineSource generates the same sine on every channel.
func sineSource(channels int, sampleRate, frequency float64) func(in []float32) bool {
	var mono []float32
	offset := 0
	return func(in []float32) bool {
		frames := len(in) / channels
		if cap(mono) < frames {
			mono = make([]float32, frames)
		}
		mono = mono[:frames]
		offset = utils.FillSineWave(mono, offset, sampleRate, frequency)
		for f, v := range mono {
			for c := range channels {
				in[f*channels+c] = v
			}
		}
		return true
	}
}

func report(w io.Writer, engine *audio.Engine, s *simulateOptions) {
	st := engine.Stats()
	fmt.Fprintf(w, "\nSimulation %s\n\n", engine.Session())
	fmt.Fprintf(w, "    Callbacks: %d (%d failed)\n", st.Callbacks, st.CallbackErrors)

	rec := engine.Recorder()
	if rec == nil {
		return
	}
	rs := rec.Stats()
	fmt.Fprintf(w, "    Drift: %+.0f ppm\n", s.driftPPM)
	fmt.Fprintf(w, "    Frames written: %d\n", rs.FramesWritten)
	fmt.Fprintf(w, "    Writer xruns: %d, Reader xruns: %d, Queue stops: %d\n",
		rs.Xruns.WriterTotal, rs.Xruns.ReaderTotal, rs.Xruns.Stops)
	if s.output != "" {
		fmt.Fprintf(w, "    Output: %s\n", s.output)
	}
	fmt.Fprintln(w)
}
