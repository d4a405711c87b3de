package config

import (
	"fmt"
	"strings"

	"csvingest/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config (e.g. "dialect.delimiter", "columns[2].type").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateIngest performs static validation of a job after defaults have
// been applied. It does not mutate in.
func ValidateIngest(in Ingest) []Issue {
	var issues []Issue

	if strings.TrimSpace(in.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be labeled \"csvingest\"",
		})
	}
	if len(in.Source.Paths) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.paths",
			Message:  "at least one input path is required",
		})
	}
	issues = append(issues, validateDialect(in.Dialect)...)
	issues = append(issues, validateColumns(in.Columns)...)
	issues = append(issues, validateScan(in.Scan)...)
	issues = append(issues, validateRejects(in.Rejects)...)
	issues = append(issues, validateStorage(in.Storage)...)
	issues = append(issues, validateRuntime(in.Runtime)...)
	issues = append(issues, validateMetrics(in.Metrics)...)
	return issues
}

func validateDialect(d Dialect) []Issue {
	var issues []Issue

	single := func(path, v string, allowEmpty bool) {
		if v == "" && allowEmpty {
			return
		}
		if len(v) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("must be a single byte, got %q", v),
			})
		}
	}
	single("dialect.delimiter", d.Delimiter, false)
	single("dialect.quote", d.Quote, true)
	single("dialect.escape", d.Escape, true)

	if d.Delimiter != "" && d.Delimiter == d.Quote {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dialect.quote",
			Message:  "quote must differ from delimiter",
		})
	}
	if d.Delimiter == "\n" || d.Delimiter == "\r" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dialect.delimiter",
			Message:  "delimiter must not be a line terminator",
		})
	}
	switch d.NewLine {
	case "auto", "\n", "\r\n":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dialect.new_line",
			Message:  fmt.Sprintf("unsupported new_line %q; use \"auto\", \"\\n\", or \"\\r\\n\"", d.NewLine),
		})
	}
	switch strings.ToLower(d.Encoding) {
	case "utf-8", "utf8", "latin-1", "latin1", "iso-8859-1", "windows-1252", "cp1252":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dialect.encoding",
			Message:  fmt.Sprintf("unsupported encoding %q", d.Encoding),
		})
	}
	if d.MaxLineSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dialect.max_line_size",
			Message:  "max_line_size must not be negative",
		})
	}
	return issues
}

func validateColumns(cols []Column) []Issue {
	var issues []Issue
	if len(cols) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "columns",
			Message:  "at least one column is required",
		})
	}
	seen := map[string]int{}
	for i, c := range cols {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("columns[%d].name", i),
				Message:  "column name must not be empty",
			})
			continue
		}
		if j, dup := seen[strings.ToLower(name)]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("columns[%d].name", i),
				Message:  fmt.Sprintf("duplicate column %q (also columns[%d])", name, j),
			})
		}
		seen[strings.ToLower(name)] = i
		if _, err := schema.ParseType(c.Type); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("columns[%d].type", i),
				Message:  err.Error(),
			})
		}
	}
	return issues
}

func validateScan(s ScanOptions) []Issue {
	var issues []Issue
	if s.Threads < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "scan.threads", Message: "threads must not be negative"})
	}
	if s.BufferSize <= 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "scan.buffer_size", Message: "buffer_size must be positive"})
	}
	if s.BytesPerThread <= 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "scan.bytes_per_thread", Message: "bytes_per_thread must be positive"})
	} else if s.BufferSize > 0 && s.BytesPerThread > s.BufferSize {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "scan.bytes_per_thread",
			Message:  fmt.Sprintf("bytes_per_thread=%d exceeds buffer_size=%d", s.BytesPerThread, s.BufferSize),
		})
	}
	return issues
}

func validateRejects(r RejectsOptions) []Issue {
	var issues []Issue
	if r.Limit < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "rejects.limit", Message: "limit must not be negative"})
	}
	if r.Store && strings.EqualFold(r.Table, r.ScansTable) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rejects.scans_table",
			Message:  "scans_table must differ from table",
		})
	}
	if !r.Store && r.Limit > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "rejects.limit",
			Message:  "limit has no effect unless rejects.store is true",
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}
	switch s.Kind {
	case "sqlite", "postgres", "mssql", "mysql":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.db.dsn", Message: "storage.db.dsn must not be empty"})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.db.table", Message: "storage.db.table must not be empty"})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", r.BatchSize),
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "runtime.channel_buffer", Message: "channel_buffer must not be negative"})
	}
	if r.ProgressMillis < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "runtime.progress_ms", Message: "progress_ms must not be negative"})
	}
	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue
	switch m.Kind {
	case "", "none":
	case "pushgateway":
		if m.Options.String("url", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.options.url",
				Message:  "pushgateway url is empty; PUSHGATEWAY_URL or the -pushgateway-url flag must supply it",
			})
		}
	case "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.kind",
			Message:  fmt.Sprintf("unknown metrics kind %q", m.Kind),
		})
	}
	return issues
}
