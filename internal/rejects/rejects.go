// Package rejects persists malformed-row records. A Registry hands out one
// Table per destination name; each Table carries the write lock and the
// global cap counter shared by every scan writing to it, and produces
// Appenders that buffer rows and flush them through a Sink.
package rejects

import (
	"context"
	"fmt"
	"sync"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"
)

// Record is one persisted reject row.
type Record struct {
	ScanID       uint64
	FileID       int
	Line         int64
	BytePosition int64
	ColumnIndex  int
	// ColumnName is nil when the error has no corresponding declared column.
	ColumnName *string
	ErrorType  string
	CSVLine    string
	Message    string
}

// Values returns r in ErrorsTableDef column order.
func (r Record) Values() []any {
	var name any
	if r.ColumnName != nil {
		name = *r.ColumnName
	}
	return []any{
		int64(r.ScanID), int64(r.FileID), r.Line, r.BytePosition,
		int64(r.ColumnIndex), name, r.ErrorType, r.CSVLine, r.Message,
	}
}

// ScanRecord describes one scanned file in the scans table.
type ScanRecord struct {
	ScanID    uint64
	FileID    int
	FilePath  string
	Delimiter string
	Quote     string
	Escape    string
	NewLine   string
	SkipRows  int
	HasHeader bool
	Columns   string
}

// Values returns s in ScansTableDef column order.
func (s ScanRecord) Values() []any {
	return []any{
		int64(s.ScanID), int64(s.FileID), s.FilePath, s.Delimiter, s.Quote,
		s.Escape, s.NewLine, int64(s.SkipRows), s.HasHeader, s.Columns,
	}
}

// ErrorsTableDef is the DDL model of the errors table.
func ErrorsTableDef(name string) ddl.TableDef {
	return ddl.TableDef{FQN: name, Columns: []ddl.ColumnDef{
		{Name: "scan_id", Type: schema.BigInt},
		{Name: "file_id", Type: schema.BigInt},
		{Name: "line", Type: schema.BigInt},
		{Name: "byte_position", Type: schema.BigInt},
		{Name: "column_idx", Type: schema.BigInt},
		{Name: "column_name", Type: schema.Varchar, Nullable: true},
		{Name: "error_type", Type: schema.Varchar},
		{Name: "csv_line", Type: schema.Varchar},
		{Name: "error_message", Type: schema.Varchar},
	}}
}

// ScansTableDef is the DDL model of the scans table.
func ScansTableDef(name string) ddl.TableDef {
	return ddl.TableDef{FQN: name, Columns: []ddl.ColumnDef{
		{Name: "scan_id", Type: schema.BigInt},
		{Name: "file_id", Type: schema.BigInt},
		{Name: "file_path", Type: schema.Varchar},
		{Name: "delimiter", Type: schema.Varchar},
		{Name: "quote", Type: schema.Varchar},
		{Name: "escape", Type: schema.Varchar},
		{Name: "newline_delimiter", Type: schema.Varchar},
		{Name: "skip_rows", Type: schema.BigInt},
		{Name: "has_header", Type: schema.Boolean},
		{Name: "columns", Type: schema.Varchar},
	}}
}

// Sink is the bulk write path. storage.Repository satisfies it.
type Sink interface {
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// EnsureFunc creates a table if it does not exist.
type EnsureFunc func(ctx context.Context, td ddl.TableDef) error

// Table is the shared state of one rejects destination.
type Table struct {
	Name      string
	ScansName string

	// WriteLock serialises writers; hold it while reading or bumping Count
	// and while appending.
	WriteLock sync.Mutex
	// Count is the number of error rows persisted so far across all scans.
	Count uint64

	sink Sink
}

// ErrorsAppender returns an appender for the errors table.
func (t *Table) ErrorsAppender(ctx context.Context) *Appender {
	return newAppender(ctx, t.sink, ErrorsTableDef(t.Name))
}

// ScansAppender returns an appender for the scans table.
func (t *Table) ScansAppender(ctx context.Context) *Appender {
	return newAppender(ctx, t.sink, ScansTableDef(t.ScansName))
}

// Registry resolves Tables by name.
type Registry struct {
	sink   Sink
	ensure EnsureFunc

	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry returns a registry writing through sink. ensure may be nil when
// the destination tables are managed elsewhere.
func NewRegistry(sink Sink, ensure EnsureFunc) *Registry {
	return &Registry{sink: sink, ensure: ensure, tables: map[string]*Table{}}
}

// GetOrCreate returns the Table for name, creating the errors and scans
// tables on first use.
func (r *Registry) GetOrCreate(ctx context.Context, name, scansName string) (*Table, error) {
	if r == nil || r.sink == nil {
		return nil, fmt.Errorf("rejects: no sink configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tables[name]; ok {
		if t.ScansName != scansName {
			return nil, fmt.Errorf("rejects: table %q already paired with scans table %q", name, t.ScansName)
		}
		return t, nil
	}
	if r.ensure != nil {
		if err := r.ensure(ctx, ErrorsTableDef(name)); err != nil {
			return nil, fmt.Errorf("rejects: create %s: %w", name, err)
		}
		if err := r.ensure(ctx, ScansTableDef(scansName)); err != nil {
			return nil, fmt.Errorf("rejects: create %s: %w", scansName, err)
		}
	}
	t := &Table{Name: name, ScansName: scansName, sink: r.sink}
	r.tables[name] = t
	return t, nil
}
