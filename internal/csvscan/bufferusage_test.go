package csvscan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"csvingest/internal/csvbuffer"
)

type countingPinner struct {
	pins map[int]int
}

func (p *countingPinner) Pin(idx int) (*csvbuffer.Buffer, error) {
	p.pins[idx]++
	return &csvbuffer.Buffer{Index: idx}, nil
}

func (p *countingPinner) Unpin(idx int) { p.pins[idx]-- }

func TestBufferUsage_LastReleaseUnpins(t *testing.T) {
	t.Parallel()

	p := &countingPinner{pins: map[int]int{}}
	u, err := NewBufferUsage(p, 4)
	require.NoError(t, err)
	require.Equal(t, 4, u.BufferIdx())
	require.Equal(t, 1, p.pins[4])

	u.Retain()
	u.Retain()
	require.Equal(t, 3, u.Refs())

	u.Release()
	u.Release()
	require.Equal(t, 1, p.pins[4], "still held by one reference")
	u.Release()
	require.Equal(t, 0, p.pins[4])

	require.Panics(t, u.Release)
}
