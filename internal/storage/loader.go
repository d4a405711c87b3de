// Package storage contains storage-agnostic contracts and utilities.
// This file implements a generic, batched loader that drains typed rows from a
// channel and invokes a bulk-insert function (CopyFn) per batch.
//
// Backends (Postgres, MySQL, MSSQL, SQLite) implement CopyFrom with their
// most efficient primitive (Postgres COPY, MSSQL bulk copy, MySQL multi-row
// INSERT, a prepared INSERT inside one SQLite transaction); TableCopier binds
// that to one destination table.
//
// Logging: every successful flush emits a debug line with the batch number,
// running total and rows/sec since the previous flush. Closing the input
// channel flushes the tail batch and logs the final total.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// CopyFn abstracts a backend's bulk insert capability bound to one table.
// Implementations insert rows (aligned to columns) and return the number of
// rows reported as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// TableCopier binds repo.CopyFrom to table.
func TableCopier(repo Repository, table string) CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return repo.CopyFrom(ctx, table, columns, rows)
	}
}

// LoadBatches drains rows from in, groups them into batches of batchSize, and
// calls copyFn for each non-empty batch. It returns the total reported by
// copyFn and the first error encountered. A nil logger disables progress logs.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
	logger *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		total     int64
		batches   int64
		batch     = make([][]any, 0, batchSize)
		start     = time.Now()
		lastFlush = start
		lastTotal int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		// The backend has consumed the rows; a fresh slice avoids aliasing
		// rows a backend may have retained.
		batch = make([][]any, 0, batchSize)

		if err != nil {
			logger.Warn("copy failed", zap.Int64("after", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(total-lastTotal) / since.Seconds()
		}
		logger.Debug("batch flushed",
			zap.Int64("batch", batches),
			zap.String("rps", humanize.Commaf(float64(int64(rps)))),
			zap.Int64("inserted", n),
			zap.Int64("total", total),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlush = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				logger.Info("loader: input closed", zap.String("total_inserted", humanize.Comma(total)))
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
