package csvscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"csvingest/internal/csvbuffer"
	"csvingest/internal/schema"
)

// ErrScannerClosed is returned by Scan after Close.
var ErrScannerClosed = errors.New("csvscan: scanner closed")

// Chunk is a batch of typed rows from one file.
type Chunk struct {
	FileIdx int
	Rows    [][]any
}

// Scanner parses the rows owned by one boundary. A scanner owns every row
// whose first byte lies in [Start, End) of its boundary; the last owned row
// may run past End. A Scanner is used by a single goroutine.
type Scanner struct {
	id        int
	file      *FileScan
	sm        *StateMachine
	boundary  Boundary
	tracker   *BufferUsage
	opts      Options
	columnIDs []int
	casters   []schema.Caster
	decoder   *encoding.Decoder

	cur cursor

	started       bool
	done          bool
	closed        bool
	headerPending bool
	pos, end      int64
	// row counts the records started in this boundary, header included.
	row int64

	val    []byte
	raw    []byte
	fields []fieldRef
}

type fieldRef struct {
	lo, hi int
	at     int64
}

// record describes the last record read; its values live in the scanner's
// scratch slices.
type record struct {
	start, next int64
	length      int64
	tooLong     bool
	// unterminatedCol is the column of an unterminated quoted value, or -1.
	unterminatedCol int
}

func newScanner(id int, fs *FileScan, b Boundary, tracker *BufferUsage, opts Options, columnIDs []int, cols []schema.Column) *Scanner {
	s := &Scanner{
		id:        id,
		file:      fs,
		sm:        fs.StateMachine,
		boundary:  b,
		tracker:   tracker,
		opts:      opts,
		columnIDs: columnIDs,
		casters:   schema.CompileCasters(cols, opts.Cast),
		cur:       cursor{mgr: fs.Buffers, bufSize: int64(fs.Buffers.BufferSize())},
	}
	if fs.StateMachine.decoder != nil {
		s.decoder = fs.StateMachine.decoder()
	}
	return s
}

// ID is the scanner's sequence number within the scan.
func (s *Scanner) ID() int { return s.id }

// Boundary returns the range this scanner owns.
func (s *Scanner) Boundary() Boundary { return s.boundary }

// FileIdx is the index of the scanned file.
func (s *Scanner) FileIdx() int { return s.file.FileIdx }

// Scan returns the next chunk of rows, or io.EOF when the boundary is
// exhausted. Rejected rows are recorded in the file's error log and left
// out of the chunk; any other row error is returned.
func (s *Scanner) Scan(ctx context.Context) (*Chunk, error) {
	if s.closed {
		return nil, ErrScannerClosed
	}
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.started {
		s.start()
		if err := s.cur.err; err != nil {
			return nil, s.ioError(err)
		}
	}

	chunk := &Chunk{FileIdx: s.file.FileIdx, Rows: make([][]any, 0, s.opts.ChunkSize)}
	for len(chunk.Rows) < s.opts.ChunkSize {
		if s.pos >= s.end {
			s.finish()
			break
		}
		rec, ok := s.readRecord()
		if err := s.cur.err; err != nil {
			return nil, s.ioError(err)
		}
		if !ok {
			s.finish()
			break
		}
		s.pos = rec.next
		s.file.addBytesRead(rec.next - rec.start)
		rowIdx := s.row
		s.row++
		s.file.Errors.UpdateMaxLineLength(rec.length)

		if s.headerPending {
			s.headerPending = false
			if err := s.checkHeader(rec, rowIdx); err != nil {
				return nil, err
			}
			continue
		}
		if rec.length == 0 {
			continue
		}
		vals, err := s.convert(rec, rowIdx)
		if err != nil {
			return nil, err
		}
		if vals != nil {
			chunk.Rows = append(chunk.Rows, vals)
		}
	}
	if len(chunk.Rows) == 0 && s.done {
		return nil, io.EOF
	}
	return chunk, nil
}

// Close releases the scanner's buffer pins and its file reference. It is
// safe to call more than once.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cur.release()
	if s.tracker != nil {
		s.tracker.Release()
	}
	return s.file.Release()
}

func (s *Scanner) start() {
	s.started = true
	s.pos, s.end = s.boundary.Start(), s.boundary.End()
	if s.pos > 0 {
		s.pos = s.align(s.pos)
	}
	s.headerPending = s.sm.Dialect.HasHeader && s.pos == 0
	if s.pos == 0 && s.sm.utf8Input() && s.hasBOM() {
		s.pos = int64(len(utf8BOM))
		s.file.addBytesRead(s.pos)
	}
}

const utf8BOM = "\xEF\xBB\xBF"

// hasBOM reports whether the file starts with a UTF-8 byte order mark.
func (s *Scanner) hasBOM() bool {
	for i := 0; i < len(utf8BOM); i++ {
		c, ok := s.cur.byteAt(int64(i))
		if !ok || c != utf8BOM[i] {
			return false
		}
	}
	return true
}

func (s *Scanner) finish() {
	if s.done {
		return
	}
	s.done = true
	s.file.Errors.InsertLines(s.boundary.Index, s.row)
}

// align moves p forward to the first record start at or after p.
func (s *Scanner) align(p int64) int64 {
	prev, _ := s.cur.byteAt(p - 1)
	switch prev {
	case '\n':
		return p
	case '\r':
		if c, ok := s.cur.byteAt(p); ok && c == '\n' {
			return p + 1
		}
		return p
	}
	for {
		c, ok := s.cur.byteAt(p)
		if !ok {
			return p
		}
		p++
		switch c {
		case '\n':
			return p
		case '\r':
			if n, ok := s.cur.byteAt(p); ok && n == '\n' {
				p++
			}
			return p
		}
	}
}

// readRecord tokenizes the record at s.pos. It returns false at end of file.
func (s *Scanner) readRecord() (record, bool) {
	rec := record{start: s.pos, unterminatedCol: -1}
	if _, ok := s.cur.byteAt(rec.start); !ok {
		return rec, false
	}
	d := &s.sm.Dialect
	limit := int64(d.MaxLineSize)
	s.val, s.raw, s.fields = s.val[:0], s.raw[:0], s.fields[:0]

	pos := rec.start
	fieldLo, fieldAt := 0, pos
	inQuotes, quoted := false, false
	termLen := int64(0)

	keep := func(c byte, value bool) {
		if pos-rec.start > limit {
			rec.tooLong = true
			return
		}
		s.raw = append(s.raw, c)
		if value {
			s.val = append(s.val, c)
		}
	}
	// terminate consumes an optional '\n' after a '\r' at pos-1.
	terminate := func(c byte) {
		termLen = 1
		if c == '\r' {
			if n, ok := s.cur.byteAt(pos); ok && n == '\n' {
				pos++
				termLen = 2
			}
		}
	}

scan:
	for {
		c, ok := s.cur.byteAt(pos)
		if !ok {
			if inQuotes {
				rec.unterminatedCol = len(s.fields)
			}
			break
		}
		pos++

		if inQuotes {
			switch {
			case c == d.Quote:
				if d.Escape == d.Quote {
					if n, ok := s.cur.byteAt(pos); ok && n == d.Quote {
						pos++
						keep(c, false)
						keep(n, true)
						continue
					}
				}
				inQuotes = false
				keep(c, false)
			case c == d.Escape && d.Escape != 0:
				if n, ok := s.cur.byteAt(pos); ok && (n == d.Quote || n == d.Escape) {
					pos++
					keep(c, false)
					keep(n, true)
					continue
				}
				keep(c, true)
			case (c == '\n' || c == '\r') && !d.QuotedNewlines:
				rec.unterminatedCol = len(s.fields)
				terminate(c)
				break scan
			default:
				keep(c, true)
			}
			continue
		}

		switch s.sm.class[c] {
		case classQuote:
			if len(s.val) == fieldLo && !quoted {
				inQuotes, quoted = true, true
				keep(c, false)
			} else {
				keep(c, true)
			}
		case classDelimiter:
			s.fields = append(s.fields, fieldRef{lo: fieldLo, hi: len(s.val), at: fieldAt})
			keep(c, false)
			fieldLo, fieldAt, quoted = len(s.val), pos, false
		case classLF, classCR:
			terminate(c)
			break scan
		default:
			keep(c, true)
		}
	}
	s.fields = append(s.fields, fieldRef{lo: fieldLo, hi: len(s.val), at: fieldAt})

	rec.next = pos
	rec.length = pos - rec.start - termLen
	if rec.length > limit {
		rec.tooLong = true
	}
	return rec, true
}

func (s *Scanner) checkHeader(rec record, rowIdx int64) error {
	if n, want := len(s.fields), len(s.file.Names); n != want && !rec.tooLong {
		return s.file.Errors.Error(s.newError(KindHeaderMismatch, rowIdx, rec.start, 0,
			fmt.Sprintf("Header has %d columns but %d were declared.", n, want)))
	}
	return nil
}

// convert casts the projected columns of rec. It returns nil values when the
// row was rejected.
func (s *Scanner) convert(rec record, rowIdx int64) ([]any, error) {
	ncols := len(s.file.Names)
	reject := func(kind ErrorKind, col int, at int64, msg string) ([]any, error) {
		return nil, s.file.Errors.Error(s.newError(kind, rowIdx, at, col, msg))
	}

	switch {
	case rec.tooLong:
		return reject(KindMaxLineSize, 0, rec.start,
			fmt.Sprintf("Maximum line size of %d bytes exceeded. Actual Size:%d bytes.", s.sm.Dialect.MaxLineSize, rec.length))
	case rec.unterminatedCol >= 0:
		return reject(KindUnterminatedQuote, min(rec.unterminatedCol, ncols-1), rec.start,
			"Value with unterminated quote found.")
	}
	if s.sm.utf8Input() {
		for i, f := range s.fields {
			if !utf8.Valid(s.val[f.lo:f.hi]) {
				return reject(KindInvalidUnicode, min(i, ncols-1), f.at,
					"Invalid unicode (byte sequence mismatch) detected.")
			}
		}
	}
	if n := len(s.fields); n < ncols {
		return reject(KindTooFewColumns, n-1, rec.start,
			fmt.Sprintf("Expected Number of Columns: %d Found: %d", ncols, n))
	} else if n > ncols {
		return reject(KindTooManyColumns, ncols, rec.start,
			fmt.Sprintf("Expected Number of Columns: %d Found: %d", ncols, n))
	}

	out := make([]any, len(s.columnIDs))
	for j, ci := range s.columnIDs {
		f := s.fields[ci]
		str := string(s.val[f.lo:f.hi])
		if s.decoder != nil {
			decoded, err := s.decoder.String(str)
			if err != nil {
				return reject(KindInvalidUnicode, ci, f.at, err.Error())
			}
			str = decoded
		}
		if err := s.casters[ci](&out[j], str); err != nil {
			return reject(KindCast, ci, f.at,
				fmt.Sprintf("Error when converting column \"%s\". %v", s.file.Names[ci], err))
		}
	}
	return out, nil
}

func (s *Scanner) newError(kind ErrorKind, rowIdx, at int64, col int, msg string) *Error {
	return &Error{
		Kind:         kind,
		FileIdx:      s.file.FileIdx,
		Info:         LinesPerBoundary{BoundaryIdx: s.boundary.Index, Row: rowIdx},
		BytePosition: at,
		ColumnIdx:    col,
		CSVRow:       strings.ToValidUTF8(string(s.raw), "\uFFFD"),
		Message:      msg,
	}
}

func (s *Scanner) ioError(err error) error {
	return &Error{
		Kind:         KindIO,
		FileIdx:      s.file.FileIdx,
		Info:         LinesPerBoundary{BoundaryIdx: s.boundary.Index, Row: s.row},
		BytePosition: s.pos,
		Message:      err.Error(),
	}
}

// cursor reads bytes by absolute offset, keeping the current buffer pinned.
type cursor struct {
	mgr     *csvbuffer.Manager
	bufSize int64
	buf     *csvbuffer.Buffer
	err     error
}

func (c *cursor) byteAt(pos int64) (byte, bool) {
	if b := c.buf; b != nil {
		off := pos - b.Offset
		if off >= 0 && off < int64(len(b.Data)) {
			return b.Data[off], true
		}
		if b.Last && off >= int64(len(b.Data)) {
			return 0, false
		}
	}
	if c.err != nil || pos < 0 {
		return 0, false
	}
	nb, err := c.mgr.Pin(int(pos / c.bufSize))
	if errors.Is(err, io.EOF) {
		return 0, false
	}
	if err != nil {
		c.err = err
		return 0, false
	}
	c.release()
	c.buf = nb
	off := pos - nb.Offset
	if off >= int64(len(nb.Data)) {
		return 0, false
	}
	return nb.Data[off], true
}

func (c *cursor) release() {
	if c.buf != nil {
		c.mgr.Unpin(c.buf.Index)
		c.buf = nil
	}
}
