package csvscan

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrorKind classifies a row-level scan error.
type ErrorKind int

const (
	KindCast ErrorKind = iota + 1
	KindTooFewColumns
	KindTooManyColumns
	KindMaxLineSize
	KindUnterminatedQuote
	KindInvalidUnicode
	// KindHeaderMismatch means the header row does not match the declared
	// columns. It is never tolerated.
	KindHeaderMismatch
	// KindIO wraps a read failure of the underlying file.
	KindIO
)

// Rejectable reports whether errors of kind k may be tolerated and stored
// in the rejects table.
func (k ErrorKind) Rejectable() bool {
	switch k {
	case KindCast, KindTooFewColumns, KindTooManyColumns,
		KindMaxLineSize, KindUnterminatedQuote, KindInvalidUnicode:
		return true
	case KindHeaderMismatch, KindIO:
		return false
	}
	return false
}

// RejectName is the error_type string stored for a rejected row. It panics
// for kinds that are not Rejectable; callers filter with Rejectable first.
func (k ErrorKind) RejectName() string {
	switch k {
	case KindCast:
		return "CAST"
	case KindTooFewColumns:
		return "MISSING COLUMNS"
	case KindTooManyColumns:
		return "TOO MANY COLUMNS"
	case KindMaxLineSize:
		return "LINE SIZE OVER MAXIMUM"
	case KindUnterminatedQuote:
		return "UNQUOTED VALUE"
	case KindInvalidUnicode:
		return "INVALID UNICODE"
	case KindHeaderMismatch, KindIO:
	}
	panic(fmt.Sprintf("internal: csv error kind %v cannot be stored as a reject", k))
}

func (k ErrorKind) String() string {
	switch k {
	case KindCast:
		return "cast"
	case KindTooFewColumns:
		return "too_few_columns"
	case KindTooManyColumns:
		return "too_many_columns"
	case KindMaxLineSize:
		return "max_line_size"
	case KindUnterminatedQuote:
		return "unterminated_quote"
	case KindInvalidUnicode:
		return "invalid_unicode"
	case KindHeaderMismatch:
		return "header_mismatch"
	case KindIO:
		return "io"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// LinesPerBoundary locates a row by the boundary that owns it and its 0-based record
// index within that boundary. Absolute line numbers are only known once every
// earlier boundary of the file has reported its record count.
type LinesPerBoundary struct {
	BoundaryIdx int
	Row         int64
}

// Error is one row-level scan error.
type Error struct {
	Kind ErrorKind
	// FileIdx is the position of the file in the scan's file list.
	FileIdx int
	Info    LinesPerBoundary
	// BytePosition is the absolute offset of the offending row or value.
	BytePosition int64
	// ColumnIdx is the 0-based column the error refers to. For too-few
	// errors it is the last column present in the row.
	ColumnIdx int
	CSVRow    string
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("csv %s error in file %d at byte %d: %s", e.Kind, e.FileIdx, e.BytePosition, e.Message)
}

// ErrorHandler is the per-file error log. It is safe for concurrent use.
type ErrorHandler struct {
	ignoreErrors bool
	hasHeader    bool

	mu     sync.Mutex
	errors []*Error
	lines  map[int]int64

	maxLineLength atomic.Int64
}

// NewErrorHandler returns an empty log. With ignoreErrors set, rejectable
// errors are recorded and tolerated.
func NewErrorHandler(ignoreErrors, hasHeader bool) *ErrorHandler {
	return &ErrorHandler{ignoreErrors: ignoreErrors, hasHeader: hasHeader, lines: map[int]int64{}}
}

// Error records e. It returns e when the error must abort the scan: the kind
// is not rejectable, or errors are not being ignored.
func (h *ErrorHandler) Error(e *Error) error {
	if !h.ignoreErrors || !e.Kind.Rejectable() {
		return e
	}
	h.mu.Lock()
	h.errors = append(h.errors, e)
	h.mu.Unlock()
	return nil
}

// Errors returns the recorded errors ordered by boundary, then row.
func (h *ErrorHandler) Errors() []*Error {
	h.mu.Lock()
	out := append([]*Error(nil), h.errors...)
	h.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Info.BoundaryIdx != out[j].Info.BoundaryIdx {
			return out[i].Info.BoundaryIdx < out[j].Info.BoundaryIdx
		}
		return out[i].Info.Row < out[j].Info.Row
	})
	return out
}

// InsertLines records how many records boundary boundaryIdx covered.
func (h *ErrorHandler) InsertLines(boundaryIdx int, lines int64) {
	h.mu.Lock()
	h.lines[boundaryIdx] = lines
	h.mu.Unlock()
}

// GetLine resolves info to a 1-based line number counted in records,
// including the header. Resolving many errors should go through LineIndex.
func (h *ErrorHandler) GetLine(info LinesPerBoundary) int64 {
	return h.LineIndex().GetLine(info)
}

// LineIndex snapshots the per-boundary line counts as prefix sums.
func (h *ErrorHandler) LineIndex() *LineIndex {
	h.mu.Lock()
	bounds := make([]int, 0, len(h.lines))
	for b := range h.lines {
		bounds = append(bounds, b)
	}
	sort.Ints(bounds)
	before := make([]int64, len(bounds)+1)
	for i, b := range bounds {
		before[i+1] = before[i] + h.lines[b]
	}
	h.mu.Unlock()
	return &LineIndex{bounds: bounds, before: before}
}

// LineIndex resolves line numbers in O(log boundaries).
type LineIndex struct {
	bounds []int
	// before[i] is the number of lines in bounds[:i].
	before []int64
}

// GetLine resolves info to a 1-based line number.
func (x *LineIndex) GetLine(info LinesPerBoundary) int64 {
	i := sort.SearchInts(x.bounds, info.BoundaryIdx)
	return x.before[i] + info.Row + 1
}

// UpdateMaxLineLength raises the recorded maximum line length to n.
func (h *ErrorHandler) UpdateMaxLineLength(n int64) {
	for {
		cur := h.maxLineLength.Load()
		if n <= cur || h.maxLineLength.CompareAndSwap(cur, n) {
			return
		}
	}
}

// MaxLineLength returns the longest line observed, in bytes.
func (h *ErrorHandler) MaxLineLength() int64 { return h.maxLineLength.Load() }
