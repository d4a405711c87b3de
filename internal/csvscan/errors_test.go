package csvscan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKind_RejectNames(t *testing.T) {
	t.Parallel()

	want := map[ErrorKind]string{
		KindCast:              "CAST",
		KindTooFewColumns:     "MISSING COLUMNS",
		KindTooManyColumns:    "TOO MANY COLUMNS",
		KindMaxLineSize:       "LINE SIZE OVER MAXIMUM",
		KindUnterminatedQuote: "UNQUOTED VALUE",
		KindInvalidUnicode:    "INVALID UNICODE",
	}
	for k, name := range want {
		require.True(t, k.Rejectable(), k.String())
		require.Equal(t, name, k.RejectName())
	}
	for _, k := range []ErrorKind{KindHeaderMismatch, KindIO, ErrorKind(99)} {
		require.False(t, k.Rejectable(), k.String())
		require.Panics(t, func() { _ = k.RejectName() })
	}
}

func TestErrorHandler_ToleratesOnlyRejectableKinds(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(true, false)
	require.NoError(t, h.Error(&Error{Kind: KindCast}))
	require.Error(t, h.Error(&Error{Kind: KindHeaderMismatch}))
	require.Len(t, h.Errors(), 1)

	strict := NewErrorHandler(false, false)
	require.Error(t, strict.Error(&Error{Kind: KindCast}))
	require.Empty(t, strict.Errors())
}

func TestErrorHandler_GetLineSumsEarlierBoundaries(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(true, true)
	h.InsertLines(2, 7)
	h.InsertLines(0, 5)
	h.InsertLines(1, 3)

	require.Equal(t, int64(1), h.GetLine(LinesPerBoundary{BoundaryIdx: 0, Row: 0}))
	require.Equal(t, int64(6), h.GetLine(LinesPerBoundary{BoundaryIdx: 1, Row: 0}))
	require.Equal(t, int64(11), h.GetLine(LinesPerBoundary{BoundaryIdx: 2, Row: 2}))
}

func TestLineIndex_SparseBoundaries(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(true, true)
	h.InsertLines(0, 4)
	h.InsertLines(3, 2)
	h.InsertLines(5, 9)
	idx := h.LineIndex()
	h.InsertLines(4, 100)

	tests := []struct {
		info LinesPerBoundary
		want int64
	}{
		{LinesPerBoundary{BoundaryIdx: 0, Row: 3}, 4},
		{LinesPerBoundary{BoundaryIdx: 2, Row: 0}, 5},
		{LinesPerBoundary{BoundaryIdx: 3, Row: 1}, 6},
		{LinesPerBoundary{BoundaryIdx: 5, Row: 0}, 7},
		{LinesPerBoundary{BoundaryIdx: 9, Row: 0}, 16},
	}
	for _, tc := range tests {
		if got := idx.GetLine(tc.info); got != tc.want {
			t.Fatalf("GetLine(%+v) = %d, want %d", tc.info, got, tc.want)
		}
	}
	require.Equal(t, int64(107), h.GetLine(LinesPerBoundary{BoundaryIdx: 5, Row: 0}), "fresh index sees later inserts")
}

func TestErrorHandler_OrdersErrorsByPosition(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(true, false)
	for _, info := range []LinesPerBoundary{{2, 0}, {0, 4}, {0, 1}, {1, 0}} {
		require.NoError(t, h.Error(&Error{Kind: KindCast, Info: info}))
	}
	var got []LinesPerBoundary
	for _, e := range h.Errors() {
		got = append(got, e.Info)
	}
	require.Equal(t, []LinesPerBoundary{{0, 1}, {0, 4}, {1, 0}, {2, 0}}, got)
}

func TestErrorHandler_MaxLineLength(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(false, false)
	for _, n := range []int64{3, 9, 4} {
		h.UpdateMaxLineLength(n)
	}
	require.Equal(t, int64(9), h.MaxLineLength())
}
