package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"csvingest/internal/metrics"
)

func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func readGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Gauge.Write() error = %v", err)
	}
	return m.GetGauge().GetValue()
}

func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "j", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "csvingest"},
		{name: "explicit job name is preserved", jobName: "orders", gatewayURL: "http://pushgateway:9091", wantJobName: "orders"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend() = %v, %v; want nil, error", b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
		})
	}
}

func TestBackend_RoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("j", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "scan", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.IncCounter(metrics.RejectsTotal, 3, nil)
	b.IncCounter("unknown", 10, nil)
	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "scan", "status": "success"})
	b.ObserveHistogram("other", 1, metrics.Labels{"step": "scan", "status": "success"})
	b.SetGauge(metrics.ScanProgress, 37.5, nil)
	b.SetGauge(metrics.ScanWorkersUsed, 4, nil)

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("scan", "success")); got != 2 {
		t.Fatalf("step counter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.rowsCounter.WithLabelValues("inserted")); got != 5 {
		t.Fatalf("rows counter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.batchCounter); got != 1 {
		t.Fatalf("batch counter = %v, want 1", got)
	}
	if got := readCounterValue(t, b.rejectsCounter); got != 3 {
		t.Fatalf("rejects counter = %v, want 3", got)
	}
	if got := readSummaryCount(t, b.stepDuration, "scan", "success"); got != 1 {
		t.Fatalf("summary count = %d, want 1", got)
	}
	if got := readGaugeValue(t, b.progress); got != 37.5 {
		t.Fatalf("progress = %v, want 37.5", got)
	}
	if got := readGaugeValue(t, b.workers); got != 4 {
		t.Fatalf("workers = %v, want 4", got)
	}
}

func TestBackend_ZeroValueIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "scanned"})
	b.IncCounter(metrics.RejectsTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
	b.SetGauge(metrics.ScanProgress, 1, nil)
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path, body string
	}
	reqCh := make(chan pushed, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{r.Method, r.URL.Path, string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("orders", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.SetGauge(metrics.ScanProgress, 100, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("method = %q, want PUT", got.method)
		}
		if !strings.Contains(got.path, "/job/orders") {
			t.Fatalf("path = %q, want job grouping", got.path)
		}
		if len(got.body) == 0 {
			t.Fatalf("empty push body")
		}
	default:
		t.Fatalf("Flush() sent no request")
	}
}

func BenchmarkIncCounterRows(b *testing.B) {
	backend, err := NewBackend("j", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"kind": "scanned"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}
