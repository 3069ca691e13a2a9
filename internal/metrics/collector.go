// Package metrics exposes object store activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics. Each collector owns its registry,
// so several can live in one process (tests, embedded servers).
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytesTotal *prometheus.CounterVec
	inflight   prometheus.Gauge
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3nav_operations_total",
				Help: "Total number of object store operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3nav_operation_duration_seconds",
				Help:    "Time taken by one object store operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3nav_bytes_total",
				Help: "Total bytes moved to or from the store",
			},
			[]string{"direction"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "s3nav_inflight_jobs",
				Help: "Number of background jobs currently running",
			},
		),
	}

	c.registry.MustRegister(c.operations)
	c.registry.MustRegister(c.duration)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.inflight)

	return c
}

// ObserveOperation records one finished operation.
func (c *Collector) ObserveOperation(op, outcome string, elapsed time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddBytes adds to the bytes moved in direction ("upload" or "download").
func (c *Collector) AddBytes(direction string, n int64) {
	if n <= 0 {
		return
	}
	c.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

// JobStarted and JobFinished track running background jobs.
func (c *Collector) JobStarted()  { c.inflight.Inc() }
func (c *Collector) JobFinished() { c.inflight.Dec() }

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
