package csvscan

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"csvingest/internal/rejects"
	"csvingest/internal/schema"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// testBind returns a bind with tiny buffers so short inputs span many
// buffers and ranges.
func testBind(files []string, cols ...schema.Column) *BindData {
	b := &BindData{
		Files: files,
		Options: Options{
			Dialect: Dialect{
				Delimiter: ',', Quote: '"', Escape: '"',
				NewLine: "\n", HasHeader: true, Encoding: "utf-8",
			},
			Parallel:       true,
			BufferSize:     64,
			BytesPerThread: 16,
			ChunkSize:      7,
		},
	}
	for _, c := range cols {
		b.ReturnNames = append(b.ReturnNames, c.Name)
		b.ReturnTypes = append(b.ReturnTypes, c.Type)
	}
	return b
}

func newTestContext(queryID uint64, sink *rejects.MemorySink) *ClientContext {
	var reg *rejects.Registry
	if sink != nil {
		reg = rejects.NewRegistry(sink, nil)
	}
	return NewClientContext(queryID, reg, nil)
}

// runWorkers drives c the way the ingest engine does: MaxThreads workers
// loop on Next and each calls DecrementThread once.
func runWorkers(t *testing.T, c *Coordinator) ([][]any, error) {
	t.Helper()
	ctx := context.Background()
	var (
		mu   sync.Mutex
		rows [][]any
		g    errgroup.Group
	)
	for i := 0; i < c.MaxThreads(); i++ {
		g.Go(func() error {
			err := drain(ctx, c, func(ch *Chunk) {
				mu.Lock()
				rows = append(rows, ch.Rows...)
				mu.Unlock()
			})
			return errors.Join(err, c.DecrementThread(ctx))
		})
	}
	err := g.Wait()
	c.Close()
	return rows, err
}

func drain(ctx context.Context, c *Coordinator, emit func(*Chunk)) error {
	for {
		sc, err := c.Next()
		if err != nil {
			return err
		}
		if sc == nil {
			return nil
		}
		for {
			ch, err := sc.Scan(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = sc.Close()
				return err
			}
			emit(ch)
		}
		if err := sc.Close(); err != nil {
			return err
		}
	}
}
