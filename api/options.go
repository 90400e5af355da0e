package api

import (
	"io"
	"log/slog"
	"net/http"
)

type options struct {
	logger      *slog.Logger
	metrics     http.Handler
	watchBuffer int
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		watchBuffer: 16,
	}
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger.
// If the logger is nil, a no-op logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}
		o.logger = logger
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) {
		o.metrics = h
	}
}

// WithWatchBuffer sets how many change events a watcher may lag behind before it is dropped.
// DEFAULT: 16
func WithWatchBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.watchBuffer = n
		}
	}
}
