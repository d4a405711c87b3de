package csvscan

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"csvingest/internal/csvbuffer"
	"csvingest/internal/schema"
)

// FileScan is the shared state of one input file. The coordinator and every
// scanner of the file hold a reference; the buffer manager is closed when
// the last one is released. The error log outlives the buffers so rejects
// can be collected after the file is done.
type FileScan struct {
	Path     string
	FileIdx  int
	FileSize int64

	Buffers      *csvbuffer.Manager
	StateMachine *StateMachine
	Errors       *ErrorHandler
	Names        []string
	Types        []schema.Type

	bytesRead atomic.Int64
	refs      atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// OpenFileScan opens path as file fileIdx of the scan described by bind.
func OpenFileScan(cctx *ClientContext, path string, fileIdx int, bind *BindData) (*FileScan, error) {
	opts := bind.Options.withDefaults()
	mgr, err := csvbuffer.Open(path, csvbuffer.Options{BufferSize: opts.BufferSize, Logger: cctx.logger()})
	if err != nil {
		return nil, err
	}
	fs, err := NewFileScan(cctx, mgr, fileIdx, bind)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return fs, nil
}

// NewFileScan wraps an already open buffer manager.
func NewFileScan(cctx *ClientContext, mgr *csvbuffer.Manager, fileIdx int, bind *BindData) (*FileScan, error) {
	opts := bind.Options.withDefaults()
	sm, err := cctx.StateMachines.Get(opts.Dialect)
	if err != nil {
		return nil, err
	}
	fs := &FileScan{
		Path:         mgr.FilePath(),
		FileIdx:      fileIdx,
		FileSize:     mgr.FileSize(),
		Buffers:      mgr,
		StateMachine: sm,
		Errors:       NewErrorHandler(opts.IgnoreErrors, opts.Dialect.HasHeader),
		Names:        bind.ReturnNames,
		Types:        bind.ReturnTypes,
	}
	fs.refs.Store(1)
	cctx.logger().Debug("file scan opened",
		zap.String("path", fs.Path),
		zap.Int("file_idx", fileIdx),
		zap.Int64("size", fs.FileSize))
	return fs, nil
}

// BytesRead is the number of bytes consumed by all scanners of the file.
func (f *FileScan) BytesRead() int64 { return f.bytesRead.Load() }

func (f *FileScan) addBytesRead(n int64) { f.bytesRead.Add(n) }

// Progress is the consumed fraction of the file in [0, 1]. An empty file is
// complete.
func (f *FileScan) Progress() float64 {
	if f.FileSize <= 0 {
		return 1
	}
	return min(1, float64(f.BytesRead())/float64(f.FileSize))
}

// Retain adds a reference.
func (f *FileScan) Retain() *FileScan {
	f.refs.Add(1)
	return f
}

// Release drops a reference and closes the buffer manager with the last one.
func (f *FileScan) Release() error {
	n := f.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("internal: file scan %s released too often", f.Path))
	}
	if n == 0 {
		f.closeOnce.Do(func() { f.closeErr = f.Buffers.Close() })
		return f.closeErr
	}
	return nil
}
