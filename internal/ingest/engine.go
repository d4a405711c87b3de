// Package ingest runs a complete job: it expands the source list, scans the
// files in parallel through a csvscan.Coordinator on a shared worker pool,
// and streams typed rows into the destination table.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"csvingest/internal/config"
	"csvingest/internal/csvscan"
	"csvingest/internal/datasource/file"
	"csvingest/internal/ddl"
	"csvingest/internal/metrics"
	"csvingest/internal/rejects"
	"csvingest/internal/storage"
)

// Options configures an Engine.
type Options struct {
	// PoolSize bounds the scan workers running at once across all runs of
	// the engine; 0 means GOMAXPROCS.
	PoolSize int
	Logger   *zap.Logger
}

// Engine executes ingest jobs. It is safe to call Run concurrently.
type Engine struct {
	pool     *ants.Pool
	log      *zap.Logger
	machines *csvscan.StateMachineCache
	queryIDs atomic.Uint64
}

// Result summarises one run.
type Result struct {
	// RunID is unique across processes; QueryID only within this engine.
	RunID          uuid.UUID
	QueryID        uint64
	Files          int
	Workers        int
	RowsScanned    int64
	RowsInserted   int64
	RejectsWritten uint64
	// MaxLineLength is set when scan.debug_max_line_length is enabled.
	MaxLineLength int64
	Duration      time.Duration
}

// New starts an engine with its worker pool.
func New(opt Options) (*Engine, error) {
	size := opt.PoolSize
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}
	return &Engine{pool: pool, log: log, machines: csvscan.NewStateMachineCache()}, nil
}

// Close releases the worker pool.
func (e *Engine) Close() { e.pool.Release() }

// Run executes cfg. Defaults must already be applied to cfg.
func (e *Engine) Run(ctx context.Context, cfg config.Ingest) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.New(), QueryID: e.queryIDs.Add(1)}
	log := e.log.With(
		zap.String("job", cfg.Job),
		zap.Stringer("run_id", res.RunID),
		zap.Uint64("query_id", res.QueryID))

	files, err := file.Expand(ctx, cfg.Source.Paths)
	metrics.RecordStep(cfg.Job, "expand", err, time.Since(start))
	if err != nil {
		return res, err
	}
	res.Files = len(files)

	bind, threads, err := csvscan.Bind(cfg, files)
	if err != nil {
		return res, err
	}

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DB.DSN})
	if err != nil {
		return res, fmt.Errorf("ingest: open storage: %w", err)
	}
	defer repo.Close()

	table := cfg.Storage.DB.Table
	if cfg.Storage.DB.AutoCreateTable {
		if err := storage.EnsureTable(ctx, cfg.Storage.Kind, repo, ddl.FromSchema(table, bind.Columns())); err != nil {
			return res, err
		}
		log.Info("table ensured", zap.String("table", table))
	}

	var reg *rejects.Registry
	if cfg.Rejects.Store {
		reg = rejects.NewRegistry(repo, func(ctx context.Context, td ddl.TableDef) error {
			return storage.EnsureTable(ctx, cfg.Storage.Kind, repo, td)
		})
	}
	cctx := csvscan.NewClientContext(res.QueryID, reg, log.Named("scan"))
	cctx.StateMachines = e.machines
	cctx.DebugSetMaxLineLength = cfg.Scan.DebugMaxLineLength

	coord, err := csvscan.NewCoordinator(cctx, nil, threads, bind, nil)
	if err != nil {
		return res, err
	}
	defer coord.Close()
	res.Workers = coord.MaxThreads()
	metrics.ObserveWorkers(cfg.Job, res.Workers)

	var scanned atomic.Int64
	rows := make(chan []any, cfg.Runtime.ChannelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, bind.ReturnNames, rows, cfg.Runtime.BatchSize,
			countingCopier(cfg.Job, storage.TableCopier(repo, table)), log.Named("loader"))
		res.RowsInserted = n
		return err
	})

	scanStart := time.Now()
	scanDone := make(chan struct{})
	g.Go(func() error {
		defer close(scanDone)
		defer close(rows)
		sg, sctx := errgroup.WithContext(gctx)
		for i := 0; i < res.Workers; i++ {
			sg.Go(func() error { return e.submit(sctx, coord, rows, &scanned) })
		}
		err := sg.Wait()
		metrics.RecordStep(cfg.Job, "scan", err, time.Since(scanStart))
		return err
	})

	var reporter sync.WaitGroup
	reporter.Add(1)
	go func() {
		defer reporter.Done()
		e.reportProgress(cfg, coord, &scanned, scanDone, log)
	}()

	err = g.Wait()
	reporter.Wait()

	res.RowsScanned = scanned.Load()
	res.RejectsWritten = coord.RejectsWritten()
	res.MaxLineLength = cctx.DebugMaxLineLength()
	res.Duration = time.Since(start)
	metrics.RecordRows(cfg.Job, "scanned", res.RowsScanned)
	metrics.RecordRows(cfg.Job, "inserted", res.RowsInserted)
	metrics.RecordRejects(cfg.Job, res.RejectsWritten)
	metrics.RecordStep(cfg.Job, "load", err, res.Duration)
	if err != nil {
		return res, err
	}

	log.Info("ingest finished",
		zap.Int("files", res.Files),
		zap.String("rows_scanned", humanize.Comma(res.RowsScanned)),
		zap.String("rows_inserted", humanize.Comma(res.RowsInserted)),
		zap.Uint64("rejects", res.RejectsWritten),
		zap.Duration("elapsed", res.Duration.Truncate(time.Millisecond)))
	return res, nil
}

// submit runs one scan worker on the pool and waits for it.
func (e *Engine) submit(ctx context.Context, c *csvscan.Coordinator, rows chan<- []any, scanned *atomic.Int64) error {
	done := make(chan error, 1)
	err := e.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("ingest: scan worker panic: %v", r)
			}
		}()
		done <- work(ctx, c, rows, scanned)
	})
	if err != nil {
		return errors.Join(fmt.Errorf("ingest: submit scan worker: %w", err), c.DecrementThread(ctx))
	}
	return <-done
}

// work pulls scanners from c until no work is left, then signs off with
// DecrementThread exactly once.
func work(ctx context.Context, c *csvscan.Coordinator, rows chan<- []any, scanned *atomic.Int64) (err error) {
	defer func() {
		err = errors.Join(err, c.DecrementThread(ctx))
	}()
	for {
		sc, err := c.Next()
		if err != nil {
			return err
		}
		if sc == nil {
			return nil
		}
		if err := forward(ctx, sc, rows, scanned); err != nil {
			_ = sc.Close()
			return err
		}
		if err := sc.Close(); err != nil {
			return err
		}
	}
}

func forward(ctx context.Context, sc *csvscan.Scanner, rows chan<- []any, scanned *atomic.Int64) error {
	for {
		chunk, err := sc.Scan(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, r := range chunk.Rows {
			select {
			case rows <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		scanned.Add(int64(len(chunk.Rows)))
	}
}

func (e *Engine) reportProgress(cfg config.Ingest, c *csvscan.Coordinator, scanned *atomic.Int64, done <-chan struct{}, log *zap.Logger) {
	every := time.Duration(cfg.Runtime.ProgressMillis) * time.Millisecond
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-done:
			metrics.ObserveProgress(cfg.Job, c.Progress())
			return
		case <-t.C:
			pct := c.Progress()
			metrics.ObserveProgress(cfg.Job, pct)
			log.Info("scan progress",
				zap.String("percent", fmt.Sprintf("%.1f", pct)),
				zap.String("rows", humanize.Comma(scanned.Load())),
				zap.String("state", c.State().String()))
		}
	}
}

func countingCopier(job string, copyFn storage.CopyFn) storage.CopyFn {
	return func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
		n, err := copyFn(ctx, columns, batch)
		if err == nil {
			metrics.RecordBatches(job, 1)
		}
		return n, err
	}
}
