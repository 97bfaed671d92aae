// Package metrics exposes conversion statistics in the Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the conversion metrics.
type Metrics struct {
	registry *prometheus.Registry

	Records     prometheus.Gauge
	Occurrences prometheus.Gauge
	Suppressed  prometheus.Gauge
	Days        prometheus.Gauge
	Events      prometheus.Gauge

	Warnings *prometheus.CounterVec
	Runs     *prometheus.CounterVec

	RunDuration prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// NewMetrics creates and registers the conversion metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_feed_records",
			Help: "Number of event records parsed from the last feed",
		}),
		Occurrences: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_index_occurrences",
			Help: "Number of occurrences in the last index",
		}),
		Suppressed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_index_suppressed_occurrences",
			Help: "Generated occurrences replaced by recurrence exceptions in the last run",
		}),
		Days: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_schedule_days",
			Help: "Number of days emitted in the last schedule",
		}),
		Events: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_schedule_events",
			Help: "Number of events emitted in the last schedule",
		}),

		Warnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frabcal_metadata_warnings_total",
				Help: "Metadata warnings raised while building schedules",
			},
			[]string{"kind"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frabcal_runs_total",
				Help: "Conversion runs by result",
			},
			[]string{"result"},
		),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_run_duration_seconds",
			Help: "Wall time of the last conversion run",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "frabcal_last_success_timestamp_seconds",
			Help: "Unix time of the last successful conversion",
		}),
	}
}

// Counts is the per-run summary recorded by ObserveRun.
type Counts struct {
	Records     int
	Occurrences int
	Suppressed  int
	Days        int
	Events      int
	Warnings    map[string]int
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(c Counts, took time.Duration, at time.Time) {
	m.Records.Set(float64(c.Records))
	m.Occurrences.Set(float64(c.Occurrences))
	m.Suppressed.Set(float64(c.Suppressed))
	m.Days.Set(float64(c.Days))
	m.Events.Set(float64(c.Events))
	for kind, n := range c.Warnings {
		m.Warnings.WithLabelValues(kind).Add(float64(n))
	}
	m.RunDuration.Set(took.Seconds())
	m.LastSuccess.Set(float64(at.Unix()))
	m.Runs.WithLabelValues(ResultSuccess).Inc()
}

// ObserveFailure records a failed run. Gauges of the last good run are kept.
func (m *Metrics) ObserveFailure(took time.Duration) {
	m.RunDuration.Set(took.Seconds())
	m.Runs.WithLabelValues(ResultFailure).Inc()
}

// WriteTextfile dumps the registry to path for the node_exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
