// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec, SummaryVec and Gauge collectors
//     registered on a private registry.
//   - Mapping the ingest labels (step, status, kind) onto Prometheus labels;
//     the job name is the Pushgateway grouping key rather than a label.
//   - Pushing collected series to a Pushgateway on Flush instead of exposing
//     an HTTP scrape endpoint, since an ingest run is a short-lived batch
//     process.
//
// All Prometheus-specific dependencies live here so the scan and load code
// only sees metrics.Backend.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"csvingest/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend. The pipeline job is
// the Pushgateway grouping key, so it is not repeated as a label.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stepCounter    *prometheus.CounterVec
	stepDuration   *prometheus.SummaryVec
	rowsCounter    *prometheus.CounterVec
	batchCounter   prometheus.Counter
	rejectsCounter prometheus.Counter
	progress       prometheus.Gauge
	workers        prometheus.Gauge
}

// NewBackend constructs a backend pushing to gatewayURL under jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "csvingest"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Pipeline step duration in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rowsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows by kind (scanned, inserted).",
		}, []string{"kind"}),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Load batches flushed to the destination table.",
		}),
		rejectsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.RejectsTotal,
			Help: "Reject rows persisted to the rejects table.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ScanProgress,
			Help: "Scan progress in percent.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ScanWorkersUsed,
			Help: "Scan workers started for the run.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":    b.stepCounter,
		"step summary":    b.stepDuration,
		"rows counter":    b.rowsCounter,
		"batch counter":   b.batchCounter,
		"rejects counter": b.rejectsCounter,
		"progress gauge":  b.progress,
		"workers gauge":   b.workers,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rowsCounter != nil {
			b.rowsCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batchCounter != nil {
			b.batchCounter.Add(delta)
		}
	case metrics.RejectsTotal:
		if b.rejectsCounter != nil {
			b.rejectsCounter.Add(delta)
		}
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// SetGauge implements metrics.Backend.
func (b *Backend) SetGauge(name string, value float64, _ metrics.Labels) {
	switch name {
	case metrics.ScanProgress:
		if b.progress != nil {
			b.progress.Set(value)
		}
	case metrics.ScanWorkersUsed:
		if b.workers != nil {
			b.workers.Set(value)
		}
	}
}

// Flush pushes the registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
