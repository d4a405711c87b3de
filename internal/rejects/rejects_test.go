package rejects

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"csvingest/internal/ddl"
)

func TestRegistry_GetOrCreateIsShared(t *testing.T) {
	t.Parallel()

	var ensured []string
	reg := NewRegistry(NewMemorySink(), func(_ context.Context, td ddl.TableDef) error {
		ensured = append(ensured, td.FQN)
		return nil
	})

	a, err := reg.GetOrCreate(context.Background(), "reject_errors", "reject_scans")
	require.NoError(t, err)
	b, err := reg.GetOrCreate(context.Background(), "reject_errors", "reject_scans")
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, []string{"reject_errors", "reject_scans"}, ensured)

	_, err = reg.GetOrCreate(context.Background(), "reject_errors", "other_scans")
	require.Error(t, err)
}

func TestRegistry_NoSink(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil, nil).GetOrCreate(context.Background(), "a", "b")
	require.Error(t, err)
}

func TestAppender_WritesRecords(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	tbl, err := NewRegistry(sink, nil).GetOrCreate(context.Background(), "errs", "scans")
	require.NoError(t, err)

	name := `"b"`
	app := tbl.ErrorsAppender(context.Background())
	for _, r := range []Record{
		{ScanID: 7, FileID: 0, Line: 3, ColumnIndex: 2, ColumnName: &name, ErrorType: "CAST"},
		{ScanID: 7, FileID: 1, Line: 9, ColumnIndex: 4, ErrorType: "TOO MANY COLUMNS"},
	} {
		app.BeginRow()
		for _, v := range r.Values() {
			app.Append(v)
		}
		require.NoError(t, app.EndRow())
	}
	require.Empty(t, sink.Rows("errs"), "rows are buffered until Close")
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())

	rows := sink.Rows("errs")
	require.Len(t, rows, 2)
	require.Equal(t, `"b"`, rows[0][5])
	require.Nil(t, rows[1][5])
	require.Equal(t, int64(2), app.Written())

	scans := tbl.ScansAppender(context.Background())
	require.NoError(t, scans.AppendRow(ScanRecord{ScanID: 7, FilePath: "a.csv", HasHeader: true}.Values()...))
	require.NoError(t, scans.Close())
	require.Len(t, sink.Rows("scans"), 1)
}

func TestAppender_RowShape(t *testing.T) {
	t.Parallel()

	tbl, err := NewRegistry(NewMemorySink(), nil).GetOrCreate(context.Background(), "e", "s")
	require.NoError(t, err)

	app := tbl.ErrorsAppender(context.Background())
	require.Error(t, app.EndRow(), "EndRow without BeginRow")

	app.BeginRow()
	app.Append(1)
	require.ErrorContains(t, app.EndRow(), "row has 1 values")
}

func TestAppender_SinkFailure(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	sink.Fail = errors.New("disk full")
	tbl, err := NewRegistry(sink, nil).GetOrCreate(context.Background(), "e", "s")
	require.NoError(t, err)

	app := tbl.ErrorsAppender(context.Background())
	require.NoError(t, app.AppendRow(Record{}.Values()...))
	err = app.Close()
	require.ErrorIs(t, err, sink.Fail)
}
