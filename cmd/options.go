// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"rtbuffer/internal/config"
	"rtbuffer/internal/log"
)

// rootOptions holds the command line values. Flags given explicitly win
// over the configuration file and ENV_* overrides, also on reload.
type rootOptions struct {
	configPath string
	flags      *config.Config
}

func newRootOptions() *rootOptions {
	return &rootOptions{flags: config.NewConfig()}
}

// bindPersistent registers the flags shared with subcommands.
func (o *rootOptions) bindPersistent(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "",
		"Configuration file (default "+config.DefaultPath+" if present)")
	f.StringVar(&o.flags.LogLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")

	f.Float64VarP(&o.flags.Audio.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.IntVarP(&o.flags.Audio.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"Frames per hardware callback (outer block size)")
	f.IntVar(&o.flags.Audio.InputChannels, "input-channels", config.DefaultInputChannels,
		"Number of input channels")
	f.IntVar(&o.flags.Audio.OutputChannels, "output-channels", config.DefaultOutputChannels,
		"Number of output channels")

	f.IntVar(&o.flags.Processing.InnerBlockSize, "inner-block-size", config.DefaultInnerBlockSize,
		"Frames per processing block")
	f.IntVar(&o.flags.Processing.Delay, "delay", config.DefaultDelay,
		"Double buffer delay in frames, -1 for the minimum")
	f.BoolVar(&o.flags.Processing.Gate.Enabled, "gate", false,
		"Enable the noise gate")
	f.BoolVar(&o.flags.Processing.Spectrum.Enabled, "spectrum", false,
		"Enable spectrum analysis")
}

// bindLocal registers the flags only the hardware engine uses.
func (o *rootOptions) bindLocal(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&o.flags.Audio.InputDevice, "input-device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' command to see available devices.")
	f.IntVar(&o.flags.Audio.OutputDevice, "output-device", config.DefaultDeviceID,
		"Output device ID")
	f.BoolVarP(&o.flags.Audio.LowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	f.BoolVarP(&o.flags.Recording.Enabled, "record", "r", false,
		"Record while the engine runs")
	f.StringVarP(&o.flags.Recording.Path, "record-file", "o", "",
		"Recording file name. Default is a timestamped file in the recording directory")

	f.StringVar(&o.flags.Transport.ListenAddress, "listen", config.DefaultListenAddress,
		"Address of the statistics server")
	f.BoolVar(&o.flags.Transport.WebSocketEnabled, "websocket", false,
		"Serve statistics and spectra on /ws")
	f.BoolVar(&o.flags.Transport.MetricsEnabled, "metrics", false,
		"Serve Prometheus metrics on /metrics")
}

// apply copies every flag set on the command line into cfg.
func (o *rootOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	set := func(name string, fn func()) {
		if changed(name) {
			fn()
		}
	}
	src := o.flags

	set("log-level", func() { cfg.LogLevel = src.LogLevel })
	set("sample-rate", func() { cfg.Audio.SampleRate = src.Audio.SampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = src.Audio.FramesPerBuffer })
	set("input-channels", func() { cfg.Audio.InputChannels = src.Audio.InputChannels })
	set("output-channels", func() { cfg.Audio.OutputChannels = src.Audio.OutputChannels })
	set("inner-block-size", func() { cfg.Processing.InnerBlockSize = src.Processing.InnerBlockSize })
	set("delay", func() { cfg.Processing.Delay = src.Processing.Delay })
	set("gate", func() { cfg.Processing.Gate.Enabled = src.Processing.Gate.Enabled })
	set("spectrum", func() { cfg.Processing.Spectrum.Enabled = src.Processing.Spectrum.Enabled })

	set("input-device", func() { cfg.Audio.InputDevice = src.Audio.InputDevice })
	set("output-device", func() { cfg.Audio.OutputDevice = src.Audio.OutputDevice })
	set("low-latency", func() { cfg.Audio.LowLatency = src.Audio.LowLatency })
	set("record", func() { cfg.Recording.Enabled = src.Recording.Enabled })
	set("record-file", func() { cfg.Recording.Path = src.Recording.Path })
	set("listen", func() { cfg.Transport.ListenAddress = src.Transport.ListenAddress })
	set("websocket", func() { cfg.Transport.WebSocketEnabled = src.Transport.WebSocketEnabled })
	set("metrics", func() { cfg.Transport.MetricsEnabled = src.Transport.MetricsEnabled })
}

// load reads the configuration, applies the command line, validates the
// result and sets the log level.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, log.GetLevel())
	}
	return cfg, nil
}
