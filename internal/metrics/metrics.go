// Package metrics exposes Prometheus metrics for snapshot operations.
//
// jab runs as a short-lived command, so metrics are not served over HTTP.
// They are written in the text exposition format to a file that the
// node_exporter textfile collector picks up.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for snapshot commits.
//
// Metrics:
//   - jab_commits_total{project} - Count of committed snapshots
//   - jab_commit_failures_total{project} - Count of failed snapshot commits
//   - jab_dump_size_bytes{project} - Size of the last committed dump
//   - jab_last_commit_timestamp_seconds{project} - Unix time of the last commit
//   - jab_commit_duration_seconds{project} - Histogram of commit durations
type Metrics struct {
	registry *prometheus.Registry

	CommitsTotal        *prometheus.CounterVec
	CommitFailuresTotal *prometheus.CounterVec
	DumpSizeBytes       *prometheus.GaugeVec
	LastCommitTimestamp *prometheus.GaugeVec
	CommitDuration      *prometheus.HistogramVec
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jab_commits_total",
				Help: "Total number of committed database snapshots",
			},
			[]string{"project"},
		),

		CommitFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jab_commit_failures_total",
				Help: "Total number of failed snapshot commits",
			},
			[]string{"project"},
		),

		DumpSizeBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_dump_size_bytes",
				Help: "Size of the most recently committed dump in bytes",
			},
			[]string{"project"},
		),

		LastCommitTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_last_commit_timestamp_seconds",
				Help: "Unix timestamp of the most recent successful commit",
			},
			[]string{"project"},
		),

		CommitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jab_commit_duration_seconds",
				Help:    "Duration of writing and committing a dump in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"project"},
		),
	}
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCommit records a successful commit.
func (m *Metrics) ObserveCommit(project string, size int, took time.Duration, at time.Time) {
	m.CommitsTotal.WithLabelValues(project).Inc()
	m.DumpSizeBytes.WithLabelValues(project).Set(float64(size))
	m.LastCommitTimestamp.WithLabelValues(project).Set(float64(at.Unix()))
	m.CommitDuration.WithLabelValues(project).Observe(took.Seconds())
}

// ObserveFailure records a failed commit.
func (m *Metrics) ObserveFailure(project string) {
	m.CommitFailuresTotal.WithLabelValues(project).Inc()
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
