package svcgraph

import (
	"github.com/sirupsen/logrus"
)

// TimingMode controls whether constructions are recorded with go-timing.
type TimingMode int

const (
	// TimingDisable records nothing.
	TimingDisable TimingMode = iota

	// TimingConstruction starts a timing context for each constructor that is called.
	// When the resolution context carries a timing.Root, the report shows the whole
	// construction chain with the time spent in each constructor.
	TimingConstruction
)

// String returns the name used by ParseTimingMode.
func (m TimingMode) String() string {
	switch m {
	case TimingDisable:
		return "disable"
	case TimingConstruction:
		return "construction"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring a Container.
type Option func(*Container)

// WithLogger sets the logger used for construction, shutdown and background
// failures. The default is a logrus logger at Info level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Container) {
		c.log = log
	}
}

// WithTiming sets the timing mode of the container.
func WithTiming(mode TimingMode) Option {
	return func(c *Container) {
		c.timing = mode
	}
}

// WithOverrides allows Bind, Register and Instance to replace what a container already
// holds. This is useful for testing scenarios where you want to override specific
// services.
func WithOverrides() Option {
	return func(c *Container) {
		c.overrides = true
	}
}

// CleanupFunc represents a function that cleans up a service value of type T.
type CleanupFunc[T any] func(T)

// WithCleanupFunc registers a custom cleanup function for values of type T. It is used
// by Shutdown, Owned.Close and the last Ref.Release in place of the default io.Closer
// handling.
func WithCleanupFunc[T any](cleanup CleanupFunc[T]) Option {
	return func(c *Container) {
		c.cleanupFuncs[typeOf[T]()] = func(v any) error {
			cleanup(valueAs[T](v))
			return nil
		}
	}
}
