package csvscan

import (
	"fmt"
	"runtime"

	"csvingest/internal/config"
	"csvingest/internal/schema"
)

// DefaultChunkSize is the number of rows a Scanner returns per Scan call.
const DefaultChunkSize = 2048

// Options are the resolved scan options.
type Options struct {
	Dialect Dialect
	// Parallel enables byte-range splitting of a file across workers.
	Parallel bool
	// BytesPerThread is the width of one range-bound boundary.
	BytesPerThread int
	BufferSize     int
	IgnoreErrors   bool

	StoreRejects      bool
	RejectsTable      string
	RejectsScansTable string
	// RejectsLimit caps the persisted rejects; 0 is unlimited.
	RejectsLimit uint64

	Cast      schema.CastOptions
	ChunkSize int
}

// BindData is everything bound before the scan starts.
type BindData struct {
	Files       []string
	ReturnNames []string
	ReturnTypes []schema.Type
	Options     Options
}

// Columns returns the bound schema.
func (b *BindData) Columns() []schema.Column {
	out := make([]schema.Column, len(b.ReturnNames))
	for i, n := range b.ReturnNames {
		out[i] = schema.Column{Name: n, Type: b.ReturnTypes[i]}
	}
	return out
}

// Bind resolves a job config and its expanded file list. It returns the
// bind data and the system thread budget.
func Bind(in config.Ingest, files []string) (*BindData, int, error) {
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("csvscan: no files to scan")
	}
	cols := make([]schema.Column, 0, len(in.Columns))
	for _, c := range in.Columns {
		t, err := schema.ParseType(c.Type)
		if err != nil {
			return nil, 0, fmt.Errorf("csvscan: column %s: %w", c.Name, err)
		}
		cols = append(cols, schema.Column{Name: c.Name, Type: t})
	}
	if len(cols) == 0 {
		return nil, 0, fmt.Errorf("csvscan: at least one column is required")
	}

	d := in.Dialect
	b := &BindData{
		Files:       files,
		ReturnNames: schema.Names(cols),
		ReturnTypes: make([]schema.Type, len(cols)),
		Options: Options{
			Dialect: Dialect{
				Delimiter:      firstByte(d.Delimiter),
				Quote:          firstByte(d.Quote),
				Escape:         firstByte(d.Escape),
				NewLine:        d.NewLine,
				HasHeader:      d.Header(),
				Encoding:       d.Encoding,
				QuotedNewlines: d.QuotedNewlines,
				MaxLineSize:    d.MaxLineSize,
			},
			Parallel:          in.Scan.ParallelEnabled(),
			BytesPerThread:    in.Scan.BytesPerThread,
			BufferSize:        in.Scan.BufferSize,
			IgnoreErrors:      in.Scan.IgnoreErrors,
			StoreRejects:      in.Rejects.Store,
			RejectsTable:      in.Rejects.Table,
			RejectsScansTable: in.Rejects.ScansTable,
			RejectsLimit:      uint64(max(in.Rejects.Limit, 0)),
			Cast: schema.CastOptions{
				DateFormat:      d.DateFormat,
				TimestampFormat: d.TimestampFormat,
				NullString:      d.NullString,
			},
			ChunkSize: DefaultChunkSize,
		},
	}
	for i, c := range cols {
		b.ReturnTypes[i] = c.Type
	}

	threads := in.Scan.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return b, threads, nil
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Dialect.Delimiter == 0 {
		out.Dialect.Delimiter = ','
	}
	if out.BufferSize <= 0 {
		out.BufferSize = config.DefaultBufferSize
	}
	if out.BytesPerThread <= 0 {
		out.BytesPerThread = min(config.DefaultBytesPerThread, out.BufferSize)
	}
	if out.Dialect.MaxLineSize <= 0 {
		out.Dialect.MaxLineSize = config.DefaultMaxLineSize
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.Dialect.QuotedNewlines {
		out.Parallel = false
	}
	if out.StoreRejects {
		out.IgnoreErrors = true
		if out.RejectsTable == "" {
			out.RejectsTable = config.DefaultRejectsTable
		}
		if out.RejectsScansTable == "" {
			out.RejectsScansTable = config.DefaultScansTable
		}
	}
	return out
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}
