package rejects

import (
	"context"
	"sync"
)

// MemorySink is an in-process Sink that keeps rows per table. It backs dry
// runs and tests.
type MemorySink struct {
	mu   sync.Mutex
	rows map[string][][]any
	// Fail, when set, is returned by CopyFrom.
	Fail error
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{rows: map[string][][]any{}}
}

// CopyFrom implements Sink.
func (m *MemorySink) CopyFrom(_ context.Context, table string, _ []string, rows [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	for _, r := range rows {
		m.rows[table] = append(m.rows[table], append([]any(nil), r...))
	}
	return int64(len(rows)), nil
}

// Rows returns a copy of the rows written to table.
func (m *MemorySink) Rows(table string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]any(nil), m.rows[table]...)
}
