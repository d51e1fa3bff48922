// Package config loads motionqa settings from YAML.
//
// A missing file is not an error: Load falls back to Default, and keys
// absent from the file keep their default values.
//
//	sample_rate: 2
//	similarity:
//	  duplicate_threshold: 0.98
//	  ssim_threshold: 0.95
//	continuity:
//	  peak_multiplier: 1.5
//	  discontinuity_ratio: 0.3
//	wobble:
//	  grid_size: 8
//	  flag_threshold: 2
//	logging:
//	  level: debug
//	  format: json
package config

import (
	"fmt"
	"math"
	"os"

	"github.com/opd-ai/motionqa/continuity"
	"github.com/opd-ai/motionqa/flow"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/opd-ai/motionqa/similarity"
	"github.com/opd-ai/motionqa/timing"
	"github.com/opd-ai/motionqa/wobble"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file name looked up by callers that do
// not pass an explicit path.
const DefaultFile = "motionqa.yaml"

// Config holds all analysis settings.
type Config struct {
	// SampleRate keeps every SampleRate-th frame for pixel analyses.
	// Timing always sees every frame.
	SampleRate int `yaml:"sample_rate"`

	Similarity similarity.Config `yaml:"similarity"`
	Flow       flow.Config       `yaml:"flow"`
	Continuity continuity.Config `yaml:"continuity"`
	Wobble     wobble.Config     `yaml:"wobble"`
	Timing     TimingConfig      `yaml:"timing"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// TimingConfig holds timing analysis settings.
type TimingConfig struct {
	// DropRatio flags intervals longer than expected/DropRatio as drops
	DropRatio float64 `yaml:"drop_ratio"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SampleRate: 1,
		Similarity: similarity.DefaultConfig(),
		Flow:       flow.DefaultConfig(),
		Continuity: continuity.DefaultConfig(),
		Wobble:     wobble.DefaultConfig(),
		Timing:     TimingConfig{DropRatio: timing.DefaultDropRatio},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and validates the result. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"path":     path,
			}).Debug("Configuration file not found, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"path":        path,
		"sample_rate": cfg.SampleRate,
	}).Info("Configuration loaded")

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.SampleRate < 1 {
		return qaerr.InvalidInput("config.Validate", "sample_rate", c.SampleRate, "must be a positive integer")
	}
	if err := c.Similarity.Validate(); err != nil {
		return err
	}
	if err := c.Flow.Validate(); err != nil {
		return err
	}
	if err := c.Continuity.Validate(); err != nil {
		return err
	}
	if err := c.Wobble.Validate(); err != nil {
		return err
	}
	if r := c.Timing.DropRatio; r <= 0 || r > 1 || math.IsNaN(r) {
		return qaerr.InvalidInput("config.Validate", "timing.drop_ratio", r, "must lie in (0,1]")
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return qaerr.InvalidInput("config.Validate", "logging.format", c.Logging.Format, "must be text or json")
	}
	return nil
}

func (l LoggingConfig) level() (logrus.Level, error) {
	if l.Level == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return logrus.InfoLevel, qaerr.InvalidInput("config.Validate", "logging.level", l.Level, err.Error())
	}
	return level, nil
}

// ApplyLogging configures the standard logrus logger.
func (c *Config) ApplyLogging() error {
	level, err := c.Logging.level()
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
