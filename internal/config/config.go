// SPDX-License-Identifier: MIT

// Package config loads the engine configuration from YAML, applies
// ENV_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"time"

	"rtbuffer/pkg/bitint"
)

// Defaults and hardware limits.
const (
	DefaultLogLevel        = "info"
	DefaultDeviceID        = MinDeviceID
	DefaultSampleRate      = 48000
	DefaultFramesPerBuffer = 256 // outer block size
	DefaultInnerBlockSize  = 512
	DefaultDelay           = -1 // minimum safe delay
	DefaultInputChannels   = 1
	DefaultOutputChannels  = 2
	DefaultGateThreshold   = 0.01
	DefaultFFTWindow       = "Hann"

	DefaultRecordingDir = "./recordings"
	DefaultRecordSource = SourceInput
	DefaultBitDepth     = 16
	DefaultMinFill      = 1024
	DefaultDesiredFill  = 4096
	DefaultMaxFill      = 16384
	DefaultXrunLimit    = 10

	DefaultListenAddress = "127.0.0.1:8090"
	DefaultStatsInterval = 250 * time.Millisecond

	MinDeviceID     = -1 // system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
	MaxChannels     = 32
)

// Recording sources.
const (
	SourceInput  = "input"  // captured samples, before processing
	SourceOutput = "output" // processed samples sent to the output device
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the complete engine configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Audio      AudioConfig      `yaml:"audio"`
	Processing ProcessingConfig `yaml:"processing"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transport  TransportConfig  `yaml:"transport"`
}

// AudioConfig describes the hardware side. FramesPerBuffer is the outer
// block size of the double buffer.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index, -1 for default
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // frames per hardware callback
	LowLatency      bool    `yaml:"low_latency"`       // use the devices' low latency suggestions
	InputChannels   int     `yaml:"input_channels"`
	OutputChannels  int     `yaml:"output_channels"`
}

// ProcessingConfig describes the inner side.
type ProcessingConfig struct {
	InnerBlockSize int            `yaml:"inner_block_size"` // frames per processing block
	Delay          int            `yaml:"delay"`            // frames, -1 for the minimum safe delay
	Gate           GateConfig     `yaml:"gate"`
	Spectrum       SpectrumConfig `yaml:"spectrum"`
}

type GateConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"` // linear peak amplitude
}

type SpectrumConfig struct {
	Enabled bool   `yaml:"enabled"`
	Window  string `yaml:"window"` // window function, see analysis.ParseWindowFunc
}

// RecordingConfig controls the drift tolerant recorder. Fill levels are in
// frames.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	OutputDir   string `yaml:"output_dir"`
	Path        string `yaml:"path"`   // fixed file name, empty for a timestamped file in OutputDir
	Source      string `yaml:"source"` // SourceInput or SourceOutput
	BitDepth    int    `yaml:"bit_depth"`
	MinFill     int    `yaml:"min_fill"`
	DesiredFill int    `yaml:"desired_fill"`
	MaxFill     int    `yaml:"max_fill"`
	XrunLimit   int    `yaml:"xrun_limit"` // consecutive xruns before the queue restarts
}

// TransportConfig controls the statistics server.
type TransportConfig struct {
	ListenAddress    string        `yaml:"listen_address"`
	StatsInterval    time.Duration `yaml:"stats_interval"`
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	MetricsEnabled   bool          `yaml:"metrics_enabled"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			OutputChannels:  DefaultOutputChannels,
		},
		Processing: ProcessingConfig{
			InnerBlockSize: DefaultInnerBlockSize,
			Delay:          DefaultDelay,
			Gate:           GateConfig{Threshold: DefaultGateThreshold},
			Spectrum:       SpectrumConfig{Window: DefaultFFTWindow},
		},
		Recording: RecordingConfig{
			OutputDir:   DefaultRecordingDir,
			Source:      DefaultRecordSource,
			BitDepth:    DefaultBitDepth,
			MinFill:     DefaultMinFill,
			DesiredFill: DefaultDesiredFill,
			MaxFill:     DefaultMaxFill,
			XrunLimit:   DefaultXrunLimit,
		},
		Transport: TransportConfig{
			ListenAddress: DefaultListenAddress,
			StatsInterval: DefaultStatsInterval,
		},
	}
}

// EffectiveDelay resolves a delay of -1 to the minimum safe delay for the
// configured block sizes.
func (c *Config) EffectiveDelay() int {
	if c.Processing.Delay < 0 {
		return bitint.MinimumDelay(c.Processing.InnerBlockSize, c.Audio.FramesPerBuffer)
	}
	return c.Processing.Delay
}

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	a, p, r := &c.Audio, &c.Processing, &c.Recording

	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("%w: device ids must be >= %d", ErrInvalid, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalid, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside [1, %d]", ErrInvalid, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels <= 0 || a.InputChannels > MaxChannels || a.OutputChannels <= 0 || a.OutputChannels > MaxChannels {
		return fmt.Errorf("%w: channel counts must be in [1, %d], got %d in and %d out", ErrInvalid, MaxChannels, a.InputChannels, a.OutputChannels)
	}

	if p.InnerBlockSize <= 0 || p.InnerBlockSize > MaxBufferFrames {
		return fmt.Errorf("%w: processing.inner_block_size %d outside [1, %d]", ErrInvalid, p.InnerBlockSize, MaxBufferFrames)
	}
	if minDelay := bitint.MinimumDelay(p.InnerBlockSize, a.FramesPerBuffer); p.Delay >= 0 && p.Delay < minDelay {
		return fmt.Errorf("%w: processing.delay %d below minimum %d for inner %d and outer %d",
			ErrInvalid, p.Delay, minDelay, p.InnerBlockSize, a.FramesPerBuffer)
	}
	if p.Delay < -1 {
		return fmt.Errorf("%w: processing.delay %d, use -1 for the minimum", ErrInvalid, p.Delay)
	}
	if p.Gate.Threshold < 0 {
		return fmt.Errorf("%w: processing.gate.threshold must not be negative", ErrInvalid)
	}
	if p.Spectrum.Enabled && !bitint.IsPowerOfTwo(p.InnerBlockSize) {
		return fmt.Errorf("%w: spectrum analysis needs a power of two inner_block_size, got %d (try %d)",
			ErrInvalid, p.InnerBlockSize, bitint.NextPowerOfTwo(p.InnerBlockSize))
	}

	if r.Enabled {
		if r.BitDepth != 16 && r.BitDepth != 24 && r.BitDepth != 32 {
			return fmt.Errorf("%w: recording.bit_depth %d, want 16, 24 or 32", ErrInvalid, r.BitDepth)
		}
		if r.Source != SourceInput && r.Source != SourceOutput {
			return fmt.Errorf("%w: recording.source %q, want %q or %q", ErrInvalid, r.Source, SourceInput, SourceOutput)
		}
		if r.OutputDir == "" && r.Path == "" {
			return fmt.Errorf("%w: recording.output_dir must be set", ErrInvalid)
		}
	}
	if r.MinFill < 0 || r.MinFill >= r.MaxFill {
		return fmt.Errorf("%w: recording.min_fill %d must be in [0, max_fill %d)", ErrInvalid, r.MinFill, r.MaxFill)
	}
	if r.DesiredFill < r.MinFill || r.DesiredFill > r.MaxFill {
		return fmt.Errorf("%w: recording.desired_fill %d must be in [%d, %d]", ErrInvalid, r.DesiredFill, r.MinFill, r.MaxFill)
	}
	if r.XrunLimit < 0 {
		return fmt.Errorf("%w: recording.xrun_limit must not be negative", ErrInvalid)
	}

	if (c.Transport.WebSocketEnabled || c.Transport.MetricsEnabled) && c.Transport.ListenAddress == "" {
		return fmt.Errorf("%w: transport.listen_address must be set", ErrInvalid)
	}
	if c.Transport.StatsInterval <= 0 {
		return fmt.Errorf("%w: transport.stats_interval must be positive", ErrInvalid)
	}
	return nil
}
