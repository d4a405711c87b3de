// Package config defines the JSON-serializable configuration model for an
// ingest job: which files to read, how to tokenize and type them, how to scan
// them in parallel, where malformed rows go, and where good rows are stored.
//
// Example (trimmed):
//
//	{
//	  "job": "daily-orders",
//	  "source":  { "paths": ["data/orders-*.csv"] },
//	  "dialect": { "delimiter": ",", "has_header": true },
//	  "columns": [ {"name": "id", "type": "bigint"}, {"name": "note", "type": "varchar"} ],
//	  "rejects": { "store": true, "limit": 100 },
//	  "storage": { "kind": "sqlite", "db": { "dsn": "out.db", "table": "orders", "auto_create_table": true } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBufferSize     = 32 << 20
	DefaultBytesPerThread = 8 << 20
	DefaultMaxLineSize    = 2 << 20
	DefaultRejectsTable   = "reject_errors"
	DefaultScansTable     = "reject_scans"
	DefaultBatchSize      = 5000
	DefaultChannelBuffer  = 1024
	DefaultProgressMillis = 1000
)

// Ingest is the top-level object decoded from a job file.
type Ingest struct {
	// Job names the run; it labels metrics.
	Job     string         `json:"job"`
	Source  Source         `json:"source"`
	Dialect Dialect        `json:"dialect"`
	Columns []Column       `json:"columns"`
	Scan    ScanOptions    `json:"scan"`
	Rejects RejectsOptions `json:"rejects"`
	Storage Storage        `json:"storage"`
	Runtime RuntimeConfig  `json:"runtime"`
	Metrics MetricsConfig  `json:"metrics"`
}

// Source lists input files. Entries may be literal paths, glob patterns, or
// "@file" references to a list file with one path per line.
type Source struct {
	Paths []string `json:"paths"`
}

// Dialect holds CSV syntax options.
type Dialect struct {
	Delimiter string `json:"delimiter"`
	Quote     string `json:"quote"`
	// Escape defaults to Quote (doubled quotes inside a quoted value).
	Escape string `json:"escape"`
	// NewLine is "\n", "\r\n", or "auto".
	NewLine   string `json:"new_line"`
	HasHeader *bool  `json:"has_header"`
	// Encoding is "utf-8", "latin-1", or "windows-1252".
	Encoding string `json:"encoding"`
	// QuotedNewlines declares that quoted values may contain line breaks.
	// Parallel range splitting is disabled when set.
	QuotedNewlines  bool   `json:"quoted_newlines"`
	MaxLineSize     int    `json:"max_line_size"`
	NullString      string `json:"null_string"`
	DateFormat      string `json:"date_format"`
	TimestampFormat string `json:"timestamp_format"`
}

// Header reports whether the first line of every file is a header.
func (d Dialect) Header() bool { return d.HasHeader == nil || *d.HasHeader }

// Column declares one output column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ScanOptions controls parallel scanning.
type ScanOptions struct {
	// Parallel enables byte-range splitting within a file. Defaults to true.
	Parallel *bool `json:"parallel"`
	// Threads is the system thread budget; 0 means GOMAXPROCS.
	Threads        int  `json:"threads"`
	BufferSize     int  `json:"buffer_size"`
	BytesPerThread int  `json:"bytes_per_thread"`
	IgnoreErrors   bool `json:"ignore_errors"`
	// DebugMaxLineLength records the longest line seen in the first file.
	DebugMaxLineLength bool `json:"debug_max_line_length"`
}

// ParallelEnabled reports the resolved parallel flag.
func (s ScanOptions) ParallelEnabled() bool { return s.Parallel == nil || *s.Parallel }

// RejectsOptions controls persistence of malformed rows.
type RejectsOptions struct {
	Store      bool   `json:"store"`
	Table      string `json:"table"`
	ScansTable string `json:"scans_table"`
	// Limit caps persisted rejects across the scan; 0 means unlimited.
	Limit int `json:"limit"`
}

// Storage selects the sink used to persist rows.
type Storage struct {
	// Kind is one of "sqlite", "postgres", "mssql", "mysql".
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures the DB sink.
type DBConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
	// AutoCreateTable creates the destination table from Columns.
	AutoCreateTable bool `json:"auto_create_table"`
}

// RuntimeConfig controls batching and channel sizes.
type RuntimeConfig struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
	// ProgressMillis is the progress reporting interval.
	ProgressMillis int `json:"progress_ms"`
}

// MetricsConfig selects a metrics backend; Options is backend-specific.
type MetricsConfig struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Load decodes a job from r and applies defaults. Unknown fields are
// rejected so typos surface early.
func Load(r io.Reader) (Ingest, error) {
	var in Ingest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return Ingest{}, fmt.Errorf("config: decode: %w", err)
	}
	in.ApplyDefaults()
	return in, nil
}

// LoadFile reads and decodes the job file at path.
func LoadFile(path string) (Ingest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Ingest{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(b))
}

// ApplyDefaults fills zero values and resolves option interactions:
// storing rejects implies ignoring errors, and quoted newlines force a
// sequential scan.
func (in *Ingest) ApplyDefaults() {
	d := &in.Dialect
	if d.Delimiter == "" {
		d.Delimiter = ","
	}
	if d.Quote == "" {
		d.Quote = `"`
	}
	if d.Escape == "" {
		d.Escape = d.Quote
	}
	if d.NewLine == "" {
		d.NewLine = "auto"
	}
	if d.Encoding == "" {
		d.Encoding = "utf-8"
	}
	if d.MaxLineSize == 0 {
		d.MaxLineSize = DefaultMaxLineSize
	}
	if d.HasHeader == nil {
		d.HasHeader = boolPtr(true)
	}

	s := &in.Scan
	if s.Parallel == nil {
		s.Parallel = boolPtr(true)
	}
	if d.QuotedNewlines {
		s.Parallel = boolPtr(false)
	}
	if s.BufferSize == 0 {
		s.BufferSize = DefaultBufferSize
	}
	if s.BytesPerThread == 0 {
		s.BytesPerThread = min(DefaultBytesPerThread, s.BufferSize)
	}

	r := &in.Rejects
	if r.Table == "" {
		r.Table = DefaultRejectsTable
	}
	if r.ScansTable == "" {
		r.ScansTable = DefaultScansTable
	}
	if r.Store {
		s.IgnoreErrors = true
	}

	rt := &in.Runtime
	if rt.BatchSize == 0 {
		rt.BatchSize = DefaultBatchSize
	}
	if rt.ChannelBuffer == 0 {
		rt.ChannelBuffer = DefaultChannelBuffer
	}
	if rt.ProgressMillis == 0 {
		rt.ProgressMillis = DefaultProgressMillis
	}

	if in.Metrics.Options == nil {
		in.Metrics.Options = Options{}
	}
}

func boolPtr(b bool) *bool { return &b }
