package leasekeeper

import (
	"io"
	"log/slog"

	"go-leasekeeper/metrics"
)

// options configures the Manager and Sweeper (internal only).
type options struct {
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		clock:  SystemClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring a Manager or Sweeper.
type Option func(*options)

// WithClock sets the time source. A nil clock keeps the system clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
// If the logger is nil, a no-op logger is used.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}
		o.logger = logger
	}
}

// WithMetrics records operation outcomes on m. A nil value disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
