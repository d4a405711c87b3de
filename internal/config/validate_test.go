package config

import (
	"path/filepath"
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validJob() Ingest {
	in := Ingest{
		Job:     "t",
		Source:  Source{Paths: []string{"a.csv"}},
		Columns: []Column{{Name: "id", Type: "bigint"}},
		Storage: Storage{Kind: "sqlite", DB: DBConfig{DSN: "x.db", Table: "t"}},
	}
	in.ApplyDefaults()
	return in
}

func TestValidateIngest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Ingest)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"no paths", func(in *Ingest) { in.Source.Paths = nil }, SeverityError, "source.paths", "at least one"},
		{"multi-byte delimiter", func(in *Ingest) { in.Dialect.Delimiter = "||" }, SeverityError, "dialect.delimiter", "single byte"},
		{"delimiter equals quote", func(in *Ingest) { in.Dialect.Quote = "," }, SeverityError, "dialect.quote", "differ"},
		{"bad new_line", func(in *Ingest) { in.Dialect.NewLine = "\r" }, SeverityError, "dialect.new_line", "unsupported"},
		{"bad encoding", func(in *Ingest) { in.Dialect.Encoding = "utf-16" }, SeverityError, "dialect.encoding", "unsupported"},
		{"no columns", func(in *Ingest) { in.Columns = nil }, SeverityError, "columns", "at least one"},
		{"duplicate column", func(in *Ingest) {
			in.Columns = append(in.Columns, Column{Name: "ID", Type: "int"})
		}, SeverityError, "columns[1].name", "duplicate"},
		{"unknown type", func(in *Ingest) { in.Columns[0].Type = "uuid" }, SeverityError, "columns[0].type", "unknown type"},
		{"bytes_per_thread over buffer", func(in *Ingest) {
			in.Scan.BufferSize = 10
			in.Scan.BytesPerThread = 20
		}, SeverityError, "scan.bytes_per_thread", "exceeds"},
		{"negative limit", func(in *Ingest) { in.Rejects.Limit = -1 }, SeverityError, "rejects.limit", "negative"},
		{"limit without store", func(in *Ingest) { in.Rejects.Limit = 5 }, SeverityWarning, "rejects.limit", "no effect"},
		{"same rejects tables", func(in *Ingest) {
			in.Rejects.Store = true
			in.Rejects.ScansTable = in.Rejects.Table
		}, SeverityError, "rejects.scans_table", "differ"},
		{"unknown storage", func(in *Ingest) { in.Storage.Kind = "oracle" }, SeverityWarning, "storage.kind", "unknown storage kind"},
		{"no dsn", func(in *Ingest) { in.Storage.DB.DSN = "" }, SeverityError, "storage.db.dsn", "must not be empty"},
		{"bad metrics kind", func(in *Ingest) { in.Metrics.Kind = "graphite" }, SeverityError, "metrics.kind", "unknown"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := validJob()
			tc.mutate(&in)
			issues := ValidateIngest(in)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.msg) {
				t.Fatalf("want %s at %s containing %q; got %+v", tc.sev, tc.path, tc.msg, issues)
			}
		})
	}
}

func TestValidateIngest_Valid(t *testing.T) {
	t.Parallel()

	issues := ValidateIngest(validJob())
	if HasErrors(issues) || len(issues) != 0 {
		t.Fatalf("issues = %+v, want none", issues)
	}
}

func TestShippedJobConfigsAreValid(t *testing.T) {
	t.Parallel()

	paths, err := filepath.Glob("../../configs/jobs/*.json")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Fatalf("no job configs found")
	}
	for _, p := range paths {
		in, err := LoadFile(p)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", p, err)
		}
		if issues := ValidateIngest(in); HasErrors(issues) {
			t.Fatalf("%s: issues = %v", p, issues)
		}
	}
}
