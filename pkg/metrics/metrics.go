package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	registry *prometheus.Registry

	// Fetch Metrics
	FetchAttemptsTotal *prometheus.CounterVec
	FetchDuration      prometheus.Histogram

	// State Metrics
	CacheLookupsTotal     *prometheus.CounterVec
	StateRecoveriesTotal  *prometheus.CounterVec
	RotationsTotal        prometheus.Counter
	FileOperationDuration *prometheus.HistogramVec
	FileErrorsTotal       *prometheus.CounterVec

	// Render Metrics
	RendersTotal *prometheus.CounterVec
	RunDuration  prometheus.Histogram
}

// NewCollector creates a new metrics collector backed by its own registry, so
// repeated construction in tests never collides on the global one.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		FetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Upstream weather requests by outcome",
			},
			[]string{"outcome"},
		),

		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of a complete fetch including retries",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Weather cache lookups by result",
			},
			[]string{"result"},
		),

		StateRecoveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_recoveries_total",
				Help:      "Times a state file was unreadable and a default was used",
			},
			[]string{"store"},
		),

		RotationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotations_total",
				Help:      "Times the city rotation advanced",
			},
		),

		FileOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_operation_duration_seconds",
				Help:      "State file operation duration in seconds by operation",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"operation"},
		),

		FileErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_errors_total",
				Help:      "State file errors by operation",
			},
			[]string{"operation"},
		),

		RendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Rendered status outputs by outcome",
			},
			[]string{"outcome"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a whole invocation",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

// Registry exposes the collector's registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile dumps the registry in the text exposition format for the
// node_exporter textfile collector. An empty path is a no-op.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordFetchAttempt increments the fetch attempt counter
func (c *Collector) RecordFetchAttempt(outcome string) {
	c.FetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup increments the cache lookup counter
func (c *Collector) RecordCacheLookup(result string) {
	c.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordRecovery increments the recovery counter for a store
func (c *Collector) RecordRecovery(store string) {
	c.StateRecoveriesTotal.WithLabelValues(store).Inc()
}

// RecordFileError increments the file error counter
func (c *Collector) RecordFileError(operation string) {
	c.FileErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordRender increments the render counter
func (c *Collector) RecordRender(outcome string) {
	c.RendersTotal.WithLabelValues(outcome).Inc()
}
