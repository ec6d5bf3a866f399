package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "credsync"

// Metrics holds the pipeline's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
//
//   - refresh_total{dataset,status}, refresh_rows_total{dataset,kind}
//   - validation_runs_total{run_type,outcome}, validation_last_results{status}
//   - pipeline_runs_total{result}, pipeline_duration_seconds
type Metrics struct {
	reg *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshRows     *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec

	validationRuns *prometheus.CounterVec
	lastResults    *prometheus.GaugeVec

	pipelineRuns        *prometheus.CounterVec
	pipelineDuration    prometheus.Histogram
	pipelineLastSuccess prometheus.Gauge
}

// NewMetrics registers the collectors on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "refresh",
				Name:      "total",
				Help:      "Dataset refreshes by dataset and final status.",
			},
			[]string{"dataset", "status"},
		),
		// kind: processed | inserted | updated
		refreshRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "refresh",
				Name:      "rows_total",
				Help:      "Rows handled by completed refreshes.",
			},
			[]string{"dataset", "kind"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "refresh",
				Name:      "duration_seconds",
				Help:      "Duration of dataset refreshes in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"dataset"},
		),

		// outcome: success | error | empty
		validationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "validation",
				Name:      "runs_total",
				Help:      "Validation runs by run type and outcome.",
			},
			[]string{"run_type", "outcome"},
		),
		lastResults: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "validation",
				Name:      "last_results",
				Help:      "Rule results of the most recent validation run by status.",
			},
			[]string{"status"},
		),

		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Daily pipeline runs by result.",
			},
			[]string{"result"},
		),
		pipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "End-to-end duration of the daily pipeline in seconds.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		pipelineLastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful pipeline run.",
			},
		),
	}
}

// Registry returns the registry backing m, for serving or writing out.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}

// ObserveRefresh records a closed refresh record.
func (m *Metrics) ObserveRefresh(dataset string, rec RefreshLogRecord) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(dataset, string(rec.Status)).Inc()
	m.refreshDuration.WithLabelValues(dataset).Observe(rec.ExecutionTimeSeconds)
	if rec.Status != RefreshCompleted {
		return
	}
	m.refreshRows.WithLabelValues(dataset, "processed").Add(float64(rec.RecordsProcessed))
	m.refreshRows.WithLabelValues(dataset, "inserted").Add(float64(rec.RecordsInserted))
	m.refreshRows.WithLabelValues(dataset, "updated").Add(float64(rec.RecordsUpdated))
}

// ObserveValidation records the outcome of RunAll.
func (m *Metrics) ObserveValidation(runType RunType, run *RunResult, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.validationRuns.WithLabelValues(string(runType), "error").Inc()
	case run == nil:
		m.validationRuns.WithLabelValues(string(runType), "empty").Inc()
	default:
		m.validationRuns.WithLabelValues(string(runType), "success").Inc()
		m.lastResults.WithLabelValues(string(StatusFail)).Set(float64(run.Failures))
		m.lastResults.WithLabelValues(string(StatusWarning)).Set(float64(run.Warnings))
		m.lastResults.WithLabelValues(string(StatusPass)).Set(float64(run.Passes))
	}
}

// ObservePipeline records a finished pipeline run.
func (m *Metrics) ObservePipeline(r Report) {
	if m == nil {
		return
	}
	result := "success"
	if r.ExitCode != 0 {
		result = "failure"
	}
	m.pipelineRuns.WithLabelValues(result).Inc()
	m.pipelineDuration.Observe(r.Elapsed.Seconds())
	if r.ExitCode == 0 {
		m.pipelineLastSuccess.Set(float64(r.Finished.Unix()))
	}
}
