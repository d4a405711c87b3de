package csvscan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"csvingest/internal/csvbuffer"
	"csvingest/internal/schema"
)

// State is the lifecycle phase of a Coordinator.
type State int

const (
	// StateConstructed: no work has been handed out yet.
	StateConstructed State = iota
	// StateActive: work is being handed out.
	StateActive
	// StateDraining: no work is left; workers are still running.
	StateDraining
	// StateFinalized: every worker has finished and rejects were written.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Coordinator hands out scan work for a list of files to a pool of workers.
//
// In parallel mode files are scanned one after another and each file is cut
// into byte ranges of Options.BytesPerThread; Next hands out one range per
// call. In single-threaded mode every call claims a whole file. Workers call
// Next until it returns a nil Scanner and then call DecrementThread once;
// the last DecrementThread writes the rejects tables.
type Coordinator struct {
	cctx           *ClientContext
	bind           *BindData
	opts           Options
	cols           []schema.Column
	columnIDs      []int
	systemThreads  int
	singleThreaded bool
	maxThreads     int

	// nextFile is the next file index claimed in single-threaded mode.
	nextFile   atomic.Int64
	scannerSeq atomic.Int64

	mu sync.Mutex
	st coordinatorState
}

type coordinatorState struct {
	// files is indexed by file index; entries are nil until opened.
	files []*FileScan
	// current is the file boundaries are cut from, or in single-threaded
	// mode the highest opened file.
	current  int
	boundary Boundary
	inUse    *BufferUsage
	// held is the file the coordinator holds a reference to.
	held *FileScan

	dispensed bool
	// handedOut counts whole files dispensed in single-threaded mode.
	handedOut int
	finished  bool
	finalized bool
	closed    bool
	running   int
	err       error

	rejectsWritten uint64
}

// NewCoordinator prepares a scan of bind.Files. mgr may carry file 0 already
// opened, e.g. by a sniffer; it is used only when its path matches.
// columnIDs selects the output columns; nil selects all of them.
func NewCoordinator(cctx *ClientContext, mgr *csvbuffer.Manager, systemThreads int, bind *BindData, columnIDs []int) (*Coordinator, error) {
	if len(bind.Files) == 0 {
		return nil, fmt.Errorf("csvscan: no files to scan")
	}
	if len(bind.ReturnNames) == 0 || len(bind.ReturnNames) != len(bind.ReturnTypes) {
		return nil, fmt.Errorf("csvscan: %d column names for %d types", len(bind.ReturnNames), len(bind.ReturnTypes))
	}
	opts := bind.Options.withDefaults()
	if opts.StoreRejects && cctx.Rejects == nil {
		return nil, fmt.Errorf("csvscan: storing rejects requires a rejects registry")
	}
	if columnIDs == nil {
		columnIDs = make([]int, len(bind.ReturnNames))
		for i := range columnIDs {
			columnIDs[i] = i
		}
	}
	for _, id := range columnIDs {
		if id < 0 || id >= len(bind.ReturnNames) {
			return nil, fmt.Errorf("csvscan: column id %d out of range", id)
		}
	}
	systemThreads = max(systemThreads, 1)
	n := len(bind.Files)

	c := &Coordinator{
		cctx:           cctx,
		bind:           bind,
		opts:           opts,
		cols:           bind.Columns(),
		columnIDs:      columnIDs,
		systemThreads:  systemThreads,
		singleThreaded: (n > 1 && n > 2*systemThreads) || !opts.Parallel,
	}

	var (
		fs0 *FileScan
		err error
	)
	if mgr != nil && mgr.FilePath() == bind.Files[0] {
		fs0, err = NewFileScan(cctx, mgr, 0, bind)
	} else {
		fs0, err = OpenFileScan(cctx, bind.Files[0], 0, bind)
	}
	if err != nil {
		return nil, err
	}
	c.st.files = make([]*FileScan, n)
	c.st.files[0] = fs0
	c.st.held = fs0

	if c.singleThreaded {
		c.st.boundary = WholeFile(0)
	} else {
		if err := c.startFileLocked(fs0); err != nil {
			_ = fs0.Release()
			return nil, err
		}
	}
	c.maxThreads = c.computeMaxThreads()
	c.st.running = c.maxThreads

	cctx.logger().Info("csv scan prepared",
		zap.Uint64("query_id", cctx.QueryID),
		zap.Int("files", n),
		zap.Bool("single_threaded", c.singleThreaded),
		zap.Int("max_threads", c.maxThreads),
		zap.Int("bytes_per_thread", opts.BytesPerThread))
	return c, nil
}

// SingleThreaded reports whether work is handed out as whole files.
func (c *Coordinator) SingleThreaded() bool { return c.singleThreaded }

// MaxThreads is the number of workers the scan wants. It is the system
// budget in single-threaded mode; otherwise it is capped by the number of
// byte ranges of the first file.
func (c *Coordinator) MaxThreads() int { return c.maxThreads }

func (c *Coordinator) computeMaxThreads() int {
	if c.singleThreaded {
		return c.systemThreads
	}
	size := c.st.files[0].FileSize
	bpt := int64(c.opts.BytesPerThread)
	ranges := int((size + bpt - 1) / bpt)
	return max(1, min(c.systemThreads, ranges))
}

// Next returns a scanner for the next unit of work, or nil when there is
// none left. The caller owns the scanner and must Close it.
func (c *Coordinator) Next() (*Scanner, error) {
	if c.singleThreaded {
		return c.nextWholeFile()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := &c.st
	if st.err != nil {
		return nil, st.err
	}
	if st.finished || st.closed {
		return nil, nil
	}
	st.dispensed = true

	fs := st.files[st.current]
	if st.inUse == nil || st.inUse.BufferIdx() != st.boundary.BufferIdx {
		u, err := NewBufferUsage(fs.Buffers, st.boundary.BufferIdx)
		if err != nil {
			return nil, c.failLocked(fmt.Errorf("csvscan: pin buffer %d of %s: %w", st.boundary.BufferIdx, fs.Path, err))
		}
		if st.inUse != nil {
			st.inUse.Release()
		}
		st.inUse = u
	}
	sc := newScanner(int(c.scannerSeq.Add(1)-1), fs.Retain(), st.boundary, st.inUse.Retain(), c.opts, c.columnIDs, c.cols)

	more, err := st.boundary.Next(fs.Buffers)
	if err != nil {
		_ = c.failLocked(err)
		return sc, nil
	}
	if !more {
		if err := c.nextFileLocked(); err != nil {
			_ = c.failLocked(err)
		}
	}
	return sc, nil
}

// nextFileLocked moves the cursor to the next file, or marks the scan
// finished after the last one.
func (c *Coordinator) nextFileLocked() error {
	st := &c.st
	c.releaseLocked()
	next := st.current + 1
	if next >= len(st.files) {
		st.finished = true
		return nil
	}
	fs, err := OpenFileScan(c.cctx, c.bind.Files[next], next, c.bind)
	if err != nil {
		return err
	}
	st.files[next] = fs
	st.current = next
	st.held = fs
	c.cctx.logger().Debug("csv scan moved to next file",
		zap.Int("file_idx", next), zap.String("path", fs.Path))
	return c.startFileLocked(fs)
}

// startFileLocked cuts the first boundary of fs and pins its first buffer.
func (c *Coordinator) startFileLocked(fs *FileScan) error {
	first, err := fs.Buffers.GetBuffer(0)
	if err != nil {
		return fmt.Errorf("csvscan: read %s: %w", fs.Path, err)
	}
	u, err := NewBufferUsage(fs.Buffers, 0)
	if err != nil {
		return fmt.Errorf("csvscan: pin %s: %w", fs.Path, err)
	}
	c.st.boundary = NewBoundary(fs.FileIdx, first, c.opts.BytesPerThread)
	c.st.inUse = u
	return nil
}

func (c *Coordinator) nextWholeFile() (*Scanner, error) {
	idx := int(c.nextFile.Add(1) - 1)
	if idx >= len(c.bind.Files) {
		return nil, nil
	}
	return c.dispenseWholeFile(idx)
}

// dispenseWholeFile hands out file idx, already claimed by the caller. The
// scan is finished only once every file has been handed out, so a caller
// that claimed an index past the end cannot cut off one still in flight.
func (c *Coordinator) dispenseWholeFile(idx int) (*Scanner, error) {
	c.mu.Lock()
	st := &c.st
	if st.err != nil || st.closed {
		c.mu.Unlock()
		return nil, nil
	}
	st.dispensed = true
	st.handedOut++
	if st.handedOut == len(st.files) {
		st.finished = true
	}
	var fs *FileScan
	if idx == 0 {
		// The coordinator's reference moves to the scanner.
		fs, st.held = st.files[0], nil
	}
	c.mu.Unlock()

	if fs == nil {
		var err error
		fs, err = OpenFileScan(c.cctx, c.bind.Files[idx], idx, c.bind)
		if err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nil, c.failLocked(err)
		}
		c.mu.Lock()
		st.files[idx] = fs
		st.current = max(st.current, idx)
		c.mu.Unlock()
	}
	return newScanner(int(c.scannerSeq.Add(1)-1), fs, WholeFile(idx), nil, c.opts, c.columnIDs, c.cols), nil
}

func (c *Coordinator) failLocked(err error) error {
	if c.st.err == nil {
		c.st.err = err
	}
	c.st.finished = true
	return c.st.err
}

// releaseLocked drops the coordinator's buffer pin and file reference.
func (c *Coordinator) releaseLocked() {
	st := &c.st
	if st.inUse != nil {
		st.inUse.Release()
		st.inUse = nil
	}
	if st.held != nil {
		if err := st.held.Release(); err != nil {
			c.cctx.logger().Warn("close csv file", zap.String("path", st.held.Path), zap.Error(err))
		}
		st.held = nil
	}
}

// Progress is the scan progress in percent, in [0, 100]. Files before the
// current one count as done; the current file contributes the fraction of
// its bytes consumed so far.
func (c *Coordinator) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := float64(len(c.st.files))
	fs := c.st.files[c.st.current]
	frac := 1.0
	if fs != nil {
		frac = fs.Progress()
	}
	pct := (float64(c.st.current)/total + frac/total) * 100
	return min(pct, 100)
}

// DecrementThread is called once by every worker after Next returned no
// more work. The last call finalizes the scan: rejects are written and the
// debug line length is published. Calling it more than MaxThreads times
// panics.
func (c *Coordinator) DecrementThread(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &c.st
	if st.running == 0 {
		panic("internal: csv scan DecrementThread called more often than MaxThreads")
	}
	st.running--
	if st.running > 0 {
		return nil
	}

	st.finalized = true
	c.releaseLocked()
	var err error
	if c.opts.StoreRejects {
		st.rejectsWritten, err = c.fillRejectsLocked(ctx)
	}
	if c.cctx.DebugSetMaxLineLength {
		c.cctx.setDebugMaxLineLength(st.files[0].Errors.MaxLineLength())
	}
	c.cctx.logger().Info("csv scan finalized",
		zap.Uint64("query_id", c.cctx.QueryID),
		zap.Uint64("rejects_written", st.rejectsWritten),
		zap.Error(err))
	return err
}

// State returns the lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.st.finalized:
		return StateFinalized
	case c.st.finished:
		return StateDraining
	case c.st.dispensed:
		return StateActive
	}
	return StateConstructed
}

// Finished reports whether all work has been handed out.
func (c *Coordinator) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.finished
}

// FileScans returns the files opened so far, indexed by file index.
func (c *Coordinator) FileScans() []*FileScan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FileScan(nil), c.st.files...)
}

// RejectsWritten is the number of reject rows written at finalization.
func (c *Coordinator) RejectsWritten() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.rejectsWritten
}

// Close releases what the coordinator still holds. Scanners keep their
// own references.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.closed = true
	c.releaseLocked()
}
