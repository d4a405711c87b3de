package config

import (
	"strings"
	"testing"
)

const minimalJob = `{
  "job": "orders",
  "source": {"paths": ["a.csv"]},
  "columns": [{"name": "id", "type": "bigint"}, {"name": "note", "type": "varchar"}],
  "storage": {"kind": "sqlite", "db": {"dsn": ":memory:", "table": "orders"}}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()

	in, err := Load(strings.NewReader(minimalJob))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if in.Dialect.Delimiter != "," || in.Dialect.Quote != `"` || in.Dialect.Escape != `"` {
		t.Fatalf("dialect = %+v, want , and \" defaults", in.Dialect)
	}
	if !in.Dialect.Header() {
		t.Fatalf("Header() = false, want true")
	}
	if !in.Scan.ParallelEnabled() {
		t.Fatalf("ParallelEnabled() = false, want true")
	}
	if in.Scan.BufferSize != DefaultBufferSize || in.Scan.BytesPerThread != DefaultBytesPerThread {
		t.Fatalf("scan sizes = %d/%d", in.Scan.BufferSize, in.Scan.BytesPerThread)
	}
	if in.Rejects.Table != DefaultRejectsTable || in.Rejects.ScansTable != DefaultScansTable {
		t.Fatalf("rejects tables = %q/%q", in.Rejects.Table, in.Rejects.ScansTable)
	}
	if in.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("BatchSize = %d, want %d", in.Runtime.BatchSize, DefaultBatchSize)
	}
	if issues := ValidateIngest(in); len(issues) != 0 {
		t.Fatalf("ValidateIngest = %+v, want none", issues)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	if _, err := Load(strings.NewReader(`{"jbo": "x"}`)); err == nil {
		t.Fatalf("Load error = nil, want unknown field error")
	}
}

func TestApplyDefaults_Interactions(t *testing.T) {
	t.Parallel()

	in := Ingest{
		Dialect: Dialect{QuotedNewlines: true},
		Rejects: RejectsOptions{Store: true},
		Scan:    ScanOptions{BufferSize: 1024},
	}
	in.ApplyDefaults()

	if in.Scan.ParallelEnabled() {
		t.Fatalf("ParallelEnabled() = true, want false when quoted_newlines is set")
	}
	if !in.Scan.IgnoreErrors {
		t.Fatalf("IgnoreErrors = false, want true when rejects.store is set")
	}
	if in.Scan.BytesPerThread != 1024 {
		t.Fatalf("BytesPerThread = %d, want clipped to buffer size 1024", in.Scan.BytesPerThread)
	}
}

func TestOptions_Getters(t *testing.T) {
	t.Parallel()

	o := Options{"s": "x", "b": true, "n": float64(3), "l": []any{"a", 1, "b"}}
	if got := o.String("s", ""); got != "x" {
		t.Fatalf("String = %q, want x", got)
	}
	if got := o.String("n", "def"); got != "def" {
		t.Fatalf("String(wrong type) = %q, want def", got)
	}
	if !o.Bool("b", false) {
		t.Fatalf("Bool = false, want true")
	}
	if got := o.Int("n", 0); got != 3 {
		t.Fatalf("Int = %d, want 3", got)
	}
	if got := o.StringSlice("l"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("StringSlice = %v, want [a b]", got)
	}

	var empty Options
	if err := empty.UnmarshalJSON([]byte("null")); err != nil || empty == nil {
		t.Fatalf("UnmarshalJSON(null) = %v, %v", empty, err)
	}
}

// TestApplyEnv overrides values through CSVINGEST_* variables. It mutates the
// process environment, so it does not run in parallel.
func TestApplyEnv(t *testing.T) {
	t.Setenv("CSVINGEST_SCAN_THREADS", "3")
	t.Setenv("CSVINGEST_SCAN_BYTES_PER_THREAD", "4096")
	t.Setenv("CSVINGEST_REJECTS_STORE", "true")
	t.Setenv("CSVINGEST_SOURCE_PATHS", "a.csv, b.csv")
	t.Setenv("CSVINGEST_DIALECT_HAS_HEADER", "false")

	in, err := Load(strings.NewReader(minimalJob))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := ApplyEnv("", &in); err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}
	if in.Scan.Threads != 3 {
		t.Fatalf("Threads = %d, want 3", in.Scan.Threads)
	}
	if in.Scan.BytesPerThread != 4096 {
		t.Fatalf("BytesPerThread = %d, want 4096", in.Scan.BytesPerThread)
	}
	if !in.Rejects.Store || !in.Scan.IgnoreErrors {
		t.Fatalf("rejects.store=%v ignore_errors=%v, want both true", in.Rejects.Store, in.Scan.IgnoreErrors)
	}
	if len(in.Source.Paths) != 2 || in.Source.Paths[1] != "b.csv" {
		t.Fatalf("Paths = %v", in.Source.Paths)
	}
	if in.Dialect.Header() {
		t.Fatalf("Header() = true, want false")
	}
	if in.Job != "orders" {
		t.Fatalf("Job = %q, unset env must not override", in.Job)
	}
}
