// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the ingest pipeline.
//
// The package is deliberately narrow:
//
//   - It exposes one interface (Backend) covering counters, histograms and
//     gauges, plus Flush for push-based systems.
//   - It keeps a global, pluggable backend that defaults to a no-op
//     implementation, so the helpers are always safe to call even when no
//     backend is configured.
//   - It mirrors the storage registry pattern: callers depend on this package
//     only, and concrete systems live in the prompush and datadog
//     subpackages.
//
// The helpers (RecordStep, RecordRows, RecordBatches, RecordRejects,
// ObserveProgress, ObserveWorkers) instrument the ingest stages: source
// expansion, scanning, loading and rejects persistence.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "csvingest_step_total"
	StepDuration    = "csvingest_step_duration_seconds"
	RowsTotal       = "csvingest_rows_total"
	BatchesTotal    = "csvingest_batches_total"
	RejectsTotal    = "csvingest_rejects_total"
	ScanProgress    = "csvingest_scan_progress_percent"
	ScanWorkersUsed = "csvingest_scan_workers"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface a metrics system implements.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge records the current value of a level metric.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b globally. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

// RecordStep counts one execution of a pipeline step and its duration.
// Steps are "expand", "scan", "load" and "rejects".
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind: "scanned" or "inserted".
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches counts flushed load batches.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}

// RecordRejects counts reject rows persisted by a finished scan.
func RecordRejects(job string, delta uint64) {
	if delta == 0 {
		return
	}
	current().IncCounter(RejectsTotal, float64(delta), Labels{"job": job})
}

// ObserveProgress publishes scan progress in percent.
func ObserveProgress(job string, pct float64) {
	current().SetGauge(ScanProgress, pct, Labels{"job": job})
}

// ObserveWorkers publishes the number of scan workers of a run.
func ObserveWorkers(job string, n int) {
	current().SetGauge(ScanWorkersUsed, float64(n), Labels{"job": job})
}
