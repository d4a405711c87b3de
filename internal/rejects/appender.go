package rejects

import (
	"context"
	"fmt"

	"csvingest/internal/ddl"
)

// flushRows bounds how many rows an Appender buffers before writing.
const flushRows = 1024

// Appender builds rows value by value and writes them through a Sink. It is
// not safe for concurrent use; callers hold the owning Table's WriteLock.
type Appender struct {
	ctx     context.Context
	sink    Sink
	table   string
	columns []string

	cur     []any
	inRow   bool
	pending [][]any
	written int64
	err     error
}

func newAppender(ctx context.Context, sink Sink, td ddl.TableDef) *Appender {
	return &Appender{ctx: ctx, sink: sink, table: td.FQN, columns: td.ColumnNames()}
}

// BeginRow starts a new row.
func (a *Appender) BeginRow() {
	a.cur = make([]any, 0, len(a.columns))
	a.inRow = true
}

// Append adds the next column value of the current row.
func (a *Appender) Append(v any) {
	a.cur = append(a.cur, v)
}

// AppendRow appends a complete row.
func (a *Appender) AppendRow(vals ...any) error {
	a.BeginRow()
	for _, v := range vals {
		a.Append(v)
	}
	return a.EndRow()
}

// EndRow finishes the current row. It fails if the number of appended values
// does not match the table's column count.
func (a *Appender) EndRow() error {
	if a.err != nil {
		return a.err
	}
	if !a.inRow {
		return fmt.Errorf("rejects: EndRow without BeginRow on %s", a.table)
	}
	a.inRow = false
	if len(a.cur) != len(a.columns) {
		return fmt.Errorf("rejects: %s: row has %d values, want %d", a.table, len(a.cur), len(a.columns))
	}
	a.pending = append(a.pending, a.cur)
	a.cur = nil
	if len(a.pending) >= flushRows {
		return a.flush()
	}
	return nil
}

// Close flushes buffered rows. Calling Close more than once is safe.
func (a *Appender) Close() error {
	if a.err != nil {
		return a.err
	}
	return a.flush()
}

// Written reports rows flushed so far.
func (a *Appender) Written() int64 { return a.written }

func (a *Appender) flush() error {
	if len(a.pending) == 0 {
		return nil
	}
	n, err := a.sink.CopyFrom(a.ctx, a.table, a.columns, a.pending)
	a.written += n
	a.pending = nil
	if err != nil {
		a.err = fmt.Errorf("rejects: write %s: %w", a.table, err)
		return a.err
	}
	return nil
}
