package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"csvingest/internal/config"
	"csvingest/internal/storage/sqlite"
)

func writeCSV(t *testing.T, dir, name string, rows int, bad map[int]string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("id,name,amount\n")
	for i := 0; i < rows; i++ {
		if line, ok := bad[i]; ok {
			sb.WriteString(line + "\n")
			continue
		}
		fmt.Fprintf(&sb, "%d,name-%d,%d.25\n", i, i, i%100)
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(sb.String()), 0o644))
	return p
}

func testConfig(t *testing.T, dir string, paths ...string) config.Ingest {
	t.Helper()
	in := config.Ingest{
		Job:    "test",
		Source: config.Source{Paths: paths},
		Columns: []config.Column{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "varchar"},
			{Name: "amount", Type: "double"},
		},
		Scan: config.ScanOptions{Threads: 4, BufferSize: 4 << 10, BytesPerThread: 1 << 10},
		Storage: config.Storage{Kind: "sqlite", DB: config.DBConfig{
			DSN:             filepath.Join(dir, "out.db"),
			Table:           "orders",
			AutoCreateTable: true,
		}},
		Runtime: config.RuntimeConfig{BatchSize: 100, ProgressMillis: 5},
	}
	in.ApplyDefaults()
	return in
}

func count(t *testing.T, dsn, table string) int64 {
	t.Helper()
	repo, cleanup, err := sqlite.NewRepository(context.Background(), dsn)
	require.NoError(t, err)
	defer cleanup()
	n, err := repo.QueryCount(context.Background(), table)
	require.NoError(t, err)
	return n
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{PoolSize: 3})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_LoadsAllFilesAndStoresRejects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", 500, map[int]string{10: "x,bad,1", 20: "21,short"})
	writeCSV(t, dir, "b.csv", 300, map[int]string{5: "5,n,notanumber"})
	cfg := testConfig(t, dir, filepath.Join(dir, "*.csv"))
	cfg.Rejects.Store = true
	cfg.ApplyDefaults()

	res, err := newEngine(t).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, res.Files)
	require.Equal(t, int64(797), res.RowsScanned)
	require.Equal(t, int64(797), res.RowsInserted)
	require.Equal(t, uint64(3), res.RejectsWritten)

	dsn := cfg.Storage.DB.DSN
	require.Equal(t, int64(797), count(t, dsn, "orders"))
	require.Equal(t, int64(3), count(t, dsn, config.DefaultRejectsTable))
	require.Equal(t, int64(2), count(t, dsn, config.DefaultScansTable))
}

func TestEngine_FatalRowErrorFailsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", 200, map[int]string{150: "oops,n,1"})
	cfg := testConfig(t, dir, path)

	_, err := newEngine(t).Run(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "could not convert string")
}

func TestEngine_QueryIDsIncrease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", 10, nil)
	cfg := testConfig(t, dir, path)
	cfg.Scan.DebugMaxLineLength = true

	e := newEngine(t)
	first, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Less(t, first.QueryID, second.QueryID)
	require.NotEqual(t, uuid.Nil, first.RunID)
	require.NotEqual(t, first.RunID, second.RunID)
	require.Equal(t, int64(len("id,name,amount")), second.MaxLineLength)
	require.Equal(t, int64(20), count(t, cfg.Storage.DB.DSN, "orders"))
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := newEngine(t)

	cfg := testConfig(t, dir, filepath.Join(dir, "missing-*.csv"))
	_, err := e.Run(context.Background(), cfg)
	require.Error(t, err)

	cfg = testConfig(t, dir, writeCSV(t, dir, "a.csv", 1, nil))
	cfg.Storage.Kind = "oracle"
	_, err = e.Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage.kind")
}
