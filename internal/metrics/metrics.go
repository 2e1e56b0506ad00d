package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scan metrics
	ScansTotal          *prometheus.CounterVec
	ScanDurationSeconds prometheus.Histogram
	GroupsTotal         *prometheus.CounterVec

	// File metrics
	FilesMovedTotal  *prometheus.CounterVec
	ExtractionsTotal *prometheus.CounterVec

	// Tracker metrics
	TransitionsTotal *prometheus.CounterVec
}

// NewMetrics registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gomovarr_scans_total",
				Help: "Total number of renamer scans",
			},
			[]string{"result"},
		),
		ScanDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gomovarr_scan_duration_seconds",
				Help:    "Duration of renamer scans in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		GroupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gomovarr_groups_total",
				Help: "Release groups handled by the renamer",
			},
			[]string{"result"},
		),
		FilesMovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gomovarr_files_moved_total",
				Help: "Files placed in the library",
			},
			[]string{"action", "result"},
		),
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gomovarr_extractions_total",
				Help: "Archives extracted",
			},
			[]string{"result"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gomovarr_release_transitions_total",
				Help: "Release status transitions made by the status tracker",
			},
			[]string{"status"},
		),
	}
}

// ObserveScan records a finished scan
func (m *Metrics) ObserveScan(started time.Time, err error) {
	if m == nil {
		return
	}
	m.ScanDurationSeconds.Observe(time.Since(started).Seconds())
	m.ScansTotal.WithLabelValues(result(err)).Inc()
}

// Group counts a group outcome: renamed, skipped or failed
func (m *Metrics) Group(outcome string) {
	if m == nil {
		return
	}
	m.GroupsTotal.WithLabelValues(outcome).Inc()
}

// FileMoved counts one mover operation
func (m *Metrics) FileMoved(action string, err error) {
	if m == nil {
		return
	}
	m.FilesMovedTotal.WithLabelValues(action, result(err)).Inc()
}

// Extraction counts one archive extraction
func (m *Metrics) Extraction(err error) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(result(err)).Inc()
}

// Transition counts a release moving to status
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(status).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
