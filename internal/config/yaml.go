// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"rtbuffer/internal/log"
)

var logger = log.For("config")

// DefaultPath is searched when Load is called without a path.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration like Load and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load reads configuration from the YAML file at path. If path is empty,
// it looks for DefaultPath and falls back to the built-in defaults when
// that does not exist. Environment overrides are applied after loading.
// The result is not validated, so callers can apply further overrides
// first.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides reads ENV_* variables. Values that do not parse are
// ignored with a warning.
func (c *Config) applyEnvOverrides() {
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	envInt("ENV_INPUT_DEVICE", &c.Audio.InputDevice)
	envInt("ENV_OUTPUT_DEVICE", &c.Audio.OutputDevice)
	envFloat("ENV_SAMPLE_RATE", &c.Audio.SampleRate)
	envInt("ENV_FRAMES_PER_BUFFER", &c.Audio.FramesPerBuffer)

	envInt("ENV_INNER_BLOCK_SIZE", &c.Processing.InnerBlockSize)
	envInt("ENV_DELAY", &c.Processing.Delay)

	envBool("ENV_RECORDING_ENABLED", &c.Recording.Enabled)
	envString("ENV_RECORDING_DIR", &c.Recording.OutputDir)

	envString("ENV_LISTEN_ADDRESS", &c.Transport.ListenAddress)
	envDuration("ENV_STATS_INTERVAL", &c.Transport.StatsInterval)
	envBool("ENV_WEBSOCKET_ENABLED", &c.Transport.WebSocketEnabled)
	envBool("ENV_METRICS_ENABLED", &c.Transport.MetricsEnabled)
}

func envString(name string, dst *string) {
	if val, ok := os.LookupEnv(name); ok {
		*dst = val
		logger.Infof("overriding from %s: %s", name, val)
	}
}

func envInt(name string, dst *int) {
	envParse(name, dst, strconv.Atoi)
}

func envBool(name string, dst *bool) {
	envParse(name, dst, strconv.ParseBool)
}

func envDuration(name string, dst *time.Duration) {
	envParse(name, dst, time.ParseDuration)
}

func envFloat(name string, dst *float64) {
	envParse(name, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envParse[T any](name string, dst *T, parse func(string) (T, error)) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	v, err := parse(val)
	if err != nil {
		logger.Warnf("ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = v
	logger.Infof("overriding from %s: %v", name, v)
}
