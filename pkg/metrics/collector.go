// Package metrics exposes run outcomes as prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yurykabanov/archiver/pkg/domain"
)

const metricsNamespace = "archiver"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector is a prometheus.Collector fed with run reports.
type Collector struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastRun     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	uploaded    *prometheus.CounterVec
	pruned      *prometheus.CounterVec
	errors      *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "The number of finished runs.",
			}, []string{"source", "kind", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "The time taken by a run, from production to cleanup.",
				Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
			}, []string{"source"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "The finish time of the latest run.",
			}, []string{"source"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "The finish time of the latest successful run.",
			}, []string{"source"},
		),
		uploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "artifacts_uploaded_total",
				Help:      "The number of uploaded artifacts.",
			}, []string{"source"},
		),
		pruned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "archives_pruned_total",
				Help:      "The number of remote archives deleted by retention.",
			}, []string{"source"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "run_errors_total",
				Help:      "The number of errors by the phase they happened in.",
			}, []string{"source", "phase"},
		),
	}
}

// RecordRun is part of the domain.RunRecorder interface.
func (c *Collector) RecordRun(ctx context.Context, report domain.RunReport) error {
	result := resultSuccess
	if !report.Succeeded() {
		result = resultFailure
	}

	finishedAt := float64(report.FinishedAt.UnixNano()) / 1e9

	c.runs.WithLabelValues(report.Source, string(report.Kind), result).Inc()
	c.runDuration.WithLabelValues(report.Source).Observe(report.Duration().Seconds())
	c.lastRun.WithLabelValues(report.Source).Set(finishedAt)
	c.uploaded.WithLabelValues(report.Source).Add(float64(report.Uploaded))
	c.pruned.WithLabelValues(report.Source).Add(float64(report.Pruned))

	if report.Succeeded() {
		c.lastSuccess.WithLabelValues(report.Source).Set(finishedAt)
	} else {
		c.errors.WithLabelValues(report.Source, report.FailedPhase.String()).Add(float64(report.ErrorCount()))
	}

	return nil
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.runDuration.Describe(ch)
	c.lastRun.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.uploaded.Describe(ch)
	c.pruned.Describe(ch)
	c.errors.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.runDuration.Collect(ch)
	c.lastRun.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.uploaded.Collect(ch)
	c.pruned.Collect(ch)
	c.errors.Collect(ch)
}
