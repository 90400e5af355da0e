// Package metrics holds the Prometheus collectors for lease operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	OpTotal      *prometheus.CounterVec   // op=reserve|clear|register|remove, result=ok|conflict|...
	OpLatencyMS  *prometheus.HistogramVec // op
	CASRetries   *prometheus.CounterVec   // op
	LeasesHeld   prometheus.Gauge
	ExpiredTotal prometheus.Counter
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer exposes them
// through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	var factory = promauto.With(reg)
	return &Metrics{
		OpTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leasekeeper_op_total",
				Help: "Lease operations by result",
			},
			[]string{"op", "result"},
		),
		OpLatencyMS: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leasekeeper_op_latency_ms",
				Help:    "Latency of lease operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"op"},
		),
		CASRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leasekeeper_cas_retries_total",
				Help: "Compare-and-set races that triggered a retry",
			},
			[]string{"op"},
		),
		LeasesHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "leasekeeper_leases_held",
			Help: "Number of currently held (unexpired) leases seen by the last sweep",
		}),
		ExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "leasekeeper_expired_compacted_total",
			Help: "Expired leases reset to free by the sweeper",
		}),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(op, result string, start time.Time) {
	if m == nil {
		return
	}
	m.OpTotal.WithLabelValues(op, result).Inc()
	m.OpLatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

// Retry counts a compare-and-set race for op.
func (m *Metrics) Retry(op string) {
	if m == nil {
		return
	}
	m.CASRetries.WithLabelValues(op).Inc()
}

// Sweep records the outcome of one sweeper pass.
func (m *Metrics) Sweep(held, compacted int) {
	if m == nil {
		return
	}
	m.LeasesHeld.Set(float64(held))
	m.ExpiredTotal.Add(float64(compacted))
}
