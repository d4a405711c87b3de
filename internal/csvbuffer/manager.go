// Package csvbuffer owns the file-backed byte buffers a CSV scan reads from.
//
// A file is divided into fixed-size buffers addressed by index. Buffers are
// loaded lazily and reference counted: a pinned buffer stays resident, an
// unpinned buffer of a seekable file may be evicted and is re-read on
// demand. Inputs that can only be read forward (".lz4" streams) keep every
// loaded buffer resident until Close.
package csvbuffer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
)

// DefaultBufferSize is used when Options.BufferSize is zero.
const DefaultBufferSize = 32 << 20

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("csvbuffer: manager closed")

// Options configures a Manager.
type Options struct {
	BufferSize int
	Logger     *zap.Logger
}

// Buffer is one loaded region of a file. Data must not be modified.
type Buffer struct {
	Index int
	// Offset is the position of Data[0] within the (decompressed) file.
	Offset int64
	Data   []byte
	// Last is true for the final buffer of the file.
	Last bool
}

// ActualSize is the number of valid bytes in the buffer.
func (b *Buffer) ActualSize() int { return len(b.Data) }

type entry struct {
	buf  *Buffer
	pins int
}

// Manager hands out the buffers of one file. It is safe for concurrent use.
type Manager struct {
	path     string
	size     int64
	bufSize  int
	seekable bool
	log      *zap.Logger

	mu     sync.Mutex
	f      *os.File
	stream *bufio.Reader
	// next is the index the stream will produce next.
	next   int
	cache  map[int]*entry
	last   int
	closed bool
}

// Open opens path. A ".lz4" suffix selects transparent lz4 decompression.
func Open(path string, opt Options) (*Manager, error) {
	if opt.BufferSize <= 0 {
		opt.BufferSize = DefaultBufferSize
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvbuffer: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbuffer: stat %s: %w", path, err)
	}

	m := &Manager{
		path:     path,
		size:     st.Size(),
		bufSize:  opt.BufferSize,
		seekable: true,
		log:      opt.Logger,
		f:        f,
		cache:    map[int]*entry{},
		last:     -1,
	}
	if strings.HasSuffix(strings.ToLower(path), ".lz4") {
		m.seekable = false
		m.stream = bufio.NewReaderSize(lz4.NewReader(f), 64<<10)
	} else {
		adviseSequential(f)
	}
	m.log.Debug("buffer manager opened",
		zap.String("file", path),
		zap.String("size", humanize.IBytes(uint64(m.size))),
		zap.Bool("seekable", m.seekable))
	return m, nil
}

// FilePath returns the path the manager was opened with.
func (m *Manager) FilePath() string { return m.path }

// FileSize returns the on-disk size. For compressed inputs this is the
// compressed size, so bytes scanned may exceed it.
func (m *Manager) FileSize() int64 { return m.size }

// Seekable reports whether evicted buffers can be re-read.
func (m *Manager) Seekable() bool { return m.seekable }

// BufferSize returns the configured buffer capacity.
func (m *Manager) BufferSize() int { return m.bufSize }

// GetBuffer returns buffer idx, loading it if needed. It returns io.EOF when
// idx is past the last buffer. Buffer 0 always exists; it is empty for an
// empty file.
func (m *Manager) GetBuffer(idx int) (*Buffer, error) {
	if idx < 0 {
		return nil, fmt.Errorf("csvbuffer: negative buffer index %d", idx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if e, ok := m.cache[idx]; ok {
		return e.buf, nil
	}
	if m.last >= 0 && idx > m.last {
		return nil, io.EOF
	}
	if m.seekable {
		return m.loadAt(idx)
	}
	return m.loadStream(idx)
}

// Pin loads buffer idx if needed and protects it from eviction.
func (m *Manager) Pin(idx int) (*Buffer, error) {
	buf, err := m.GetBuffer(idx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[idx]
	if !ok {
		// Evicted between GetBuffer and here; re-register the same data.
		e = &entry{buf: buf}
		m.cache[idx] = e
	}
	e.pins++
	return buf, nil
}

// Unpin releases one pin on idx. When the last pin of a seekable file's
// buffer is released the buffer is evicted.
func (m *Manager) Unpin(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[idx]
	if !ok || e.pins == 0 {
		return
	}
	e.pins--
	if e.pins == 0 && m.seekable {
		delete(m.cache, idx)
	}
}

// Pins reports the pin count of idx.
func (m *Manager) Pins(idx int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache[idx]; ok {
		return e.pins
	}
	return 0
}

// Resident reports how many buffers are cached.
func (m *Manager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// Close releases the file and every cached buffer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cache = nil
	return m.f.Close()
}

// loadAt reads buffer idx of a seekable file. Other unpinned buffers are
// evicted first so at most one unpinned buffer stays resident.
func (m *Manager) loadAt(idx int) (*Buffer, error) {
	off := int64(idx) * int64(m.bufSize)
	if off >= m.size && !(idx == 0 && m.size == 0) {
		m.last = max(m.lastIndexFor(), 0)
		return nil, io.EOF
	}
	for i, e := range m.cache {
		if e.pins == 0 {
			delete(m.cache, i)
		}
	}

	n := min(int64(m.bufSize), m.size-off)
	data := make([]byte, n)
	if _, err := m.f.ReadAt(data, off); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csvbuffer: read %s buffer %d: %w", m.path, idx, err)
	}
	buf := &Buffer{Index: idx, Offset: off, Data: data, Last: off+n >= m.size}
	if buf.Last {
		m.last = idx
	}
	m.cache[idx] = &entry{buf: buf}
	return buf, nil
}

func (m *Manager) lastIndexFor() int {
	if m.size == 0 {
		return 0
	}
	return int((m.size - 1) / int64(m.bufSize))
}

// loadStream advances the decompressing stream up to buffer idx, retaining
// every buffer it produces.
func (m *Manager) loadStream(idx int) (*Buffer, error) {
	for m.next <= idx {
		if m.last >= 0 {
			return nil, io.EOF
		}
		data := make([]byte, m.bufSize)
		n, err := io.ReadFull(m.stream, data)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			err = nil
		case err != nil:
			return nil, fmt.Errorf("csvbuffer: decompress %s buffer %d: %w", m.path, m.next, err)
		}
		last := n < m.bufSize
		if !last {
			if _, perr := m.stream.Peek(1); perr != nil {
				if !errors.Is(perr, io.EOF) {
					return nil, fmt.Errorf("csvbuffer: decompress %s: %w", m.path, perr)
				}
				last = true
			}
		}
		if n == 0 && m.next > 0 {
			// The previous buffer ended exactly at EOF.
			m.last = m.next - 1
			return nil, io.EOF
		}
		buf := &Buffer{
			Index:  m.next,
			Offset: int64(m.next) * int64(m.bufSize),
			Data:   data[:n],
			Last:   last,
		}
		m.cache[m.next] = &entry{buf: buf}
		if last {
			m.last = m.next
		}
		m.next++
	}
	if e, ok := m.cache[idx]; ok {
		return e.buf, nil
	}
	return nil, io.EOF
}
