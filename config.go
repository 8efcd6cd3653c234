package svcgraph

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds container settings that can come from the environment.
type Config struct {
	// Timing is "disable" or "construction".
	Timing string `envconfig:"TIMING" default:"disable"`

	// LogLevel is any level logrus understands. It only applies to the container's
	// default logger or to a *logrus.Logger passed with WithLogger.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Overrides enables WithOverrides.
	Overrides bool `envconfig:"OVERRIDES" default:"false"`
}

// LoadConfig reads a Config from <PREFIX>_TIMING, <PREFIX>_LOG_LEVEL and
// <PREFIX>_OVERRIDES and checks the values.
func LoadConfig(prefix string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, err
	}
	if _, err := ParseTimingMode(cfg.Timing); err != nil {
		return Config{}, err
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTimingMode converts the name of a timing mode to its value.
func ParseTimingMode(s string) (TimingMode, error) {
	switch strings.ToLower(s) {
	case "", "disable":
		return TimingDisable, nil
	case "construction":
		return TimingConstruction, nil
	default:
		return TimingDisable, fmt.Errorf("unknown timing mode %q", s)
	}
}

// WithConfig applies a Config. Invalid values are logged and ignored; use LoadConfig
// to reject them up front. Place it after WithLogger for the level to reach a custom
// logger.
func WithConfig(cfg Config) Option {
	return func(c *Container) {
		if mode, err := ParseTimingMode(cfg.Timing); err != nil {
			c.log.WithError(err).Warn("ignoring timing setting")
		} else {
			c.timing = mode
		}

		if level, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
			c.log.WithError(err).Warn("ignoring log level setting")
		} else if logger, ok := c.log.(*logrus.Logger); ok {
			logger.SetLevel(level)
		}

		if cfg.Overrides {
			c.overrides = true
		}
	}
}
