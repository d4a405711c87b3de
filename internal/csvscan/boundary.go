package csvscan

import (
	"errors"
	"fmt"
	"io"
	"math"

	"csvingest/internal/csvbuffer"
)

// BufferSource resolves buffers by index. *csvbuffer.Manager implements it.
type BufferSource interface {
	GetBuffer(idx int) (*csvbuffer.Buffer, error)
}

// Boundary is the unit of work handed to one scanner. A range-bound boundary
// covers [BufferPos, EndPos) of buffer BufferIdx; a degenerate boundary
// covers the whole file.
type Boundary struct {
	FileIdx   int
	BufferIdx int
	// BufferOffset is the file offset of the buffer's first byte.
	BufferOffset int64
	BufferPos    int
	EndPos       int
	// Index numbers the boundaries of one file from zero.
	Index int

	bytesPerThread int
	set            bool
}

// NewBoundary returns the first range-bound boundary of file fileIdx, cut
// from buffer 0.
func NewBoundary(fileIdx int, first *csvbuffer.Buffer, bytesPerThread int) Boundary {
	return Boundary{
		FileIdx:        fileIdx,
		BufferIdx:      first.Index,
		BufferOffset:   first.Offset,
		EndPos:         min(bytesPerThread, first.ActualSize()),
		bytesPerThread: bytesPerThread,
		set:            true,
	}
}

// WholeFile returns the degenerate boundary of file fileIdx.
func WholeFile(fileIdx int) Boundary {
	return Boundary{FileIdx: fileIdx}
}

// IsSet reports whether b is range-bound.
func (b Boundary) IsSet() bool { return b.set }

// Start is the absolute file offset where the boundary begins.
func (b Boundary) Start() int64 {
	if !b.set {
		return 0
	}
	return b.BufferOffset + int64(b.BufferPos)
}

// End is the absolute file offset where the boundary ends. A degenerate
// boundary never ends.
func (b Boundary) End() int64 {
	if !b.set {
		return math.MaxInt64
	}
	return b.BufferOffset + int64(b.EndPos)
}

func (b Boundary) String() string {
	if !b.set {
		return fmt.Sprintf("file=%d whole", b.FileIdx)
	}
	return fmt.Sprintf("file=%d #%d buf=%d [%d,%d)", b.FileIdx, b.Index, b.BufferIdx, b.Start(), b.End())
}

// Next advances b to the following range of the same file. It returns false
// when the file is exhausted, in which case b is left unchanged. A
// degenerate boundary is always exhausted.
func (b *Boundary) Next(src BufferSource) (bool, error) {
	if !b.set {
		return false, nil
	}
	cur, err := src.GetBuffer(b.BufferIdx)
	if err != nil {
		return false, fmt.Errorf("csvscan: boundary %s: %w", b, err)
	}
	actual := cur.ActualSize()
	if b.EndPos == actual && cur.Last {
		return false, nil
	}

	next := *b
	if b.EndPos == actual {
		nb, err := src.GetBuffer(b.BufferIdx + 1)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("csvscan: boundary %s: %w", b, err)
		}
		next.BufferIdx = nb.Index
		next.BufferOffset = nb.Offset
		next.BufferPos = 0
		actual = nb.ActualSize()
	} else {
		next.BufferPos = b.EndPos
	}
	next.EndPos = min(next.BufferPos+b.bytesPerThread, actual)
	next.Index++
	*b = next
	return true, nil
}
