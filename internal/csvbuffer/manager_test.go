package csvbuffer

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func writeLZ4(t *testing.T, name string, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return writeFile(t, name, buf.Bytes())
}

// readAll concatenates every buffer until io.EOF.
func readAll(t *testing.T, m *Manager) []byte {
	t.Helper()
	var out []byte
	for i := 0; ; i++ {
		b, err := m.GetBuffer(i)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		require.Equal(t, int64(len(out)), b.Offset)
		out = append(out, b.Data...)
		if b.Last {
			_, err := m.GetBuffer(i + 1)
			require.ErrorIs(t, err, io.EOF)
			return out
		}
	}
}

func TestManager_SeekableBuffers(t *testing.T) {
	t.Parallel()

	data := []byte(strings.Repeat("abcdefghij", 10)) // 100 bytes
	m, err := Open(writeFile(t, "f.csv", data), Options{BufferSize: 32})
	require.NoError(t, err)
	defer m.Close()

	require.True(t, m.Seekable())
	require.Equal(t, int64(100), m.FileSize())

	b3, err := m.GetBuffer(3)
	require.NoError(t, err)
	require.Equal(t, 4, b3.ActualSize())
	require.True(t, b3.Last)

	require.Equal(t, data, readAll(t, m))
}

func TestManager_PinPreventsEviction(t *testing.T) {
	t.Parallel()

	m, err := Open(writeFile(t, "f.csv", make([]byte, 64)), Options{BufferSize: 16})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Pin(0)
	require.NoError(t, err)
	_, err = m.Pin(0)
	require.NoError(t, err)
	require.Equal(t, 2, m.Pins(0))

	// Loading other buffers evicts only unpinned ones.
	_, err = m.GetBuffer(1)
	require.NoError(t, err)
	_, err = m.GetBuffer(2)
	require.NoError(t, err)
	require.Equal(t, 2, m.Resident(), "pinned buffer 0 plus the latest unpinned buffer")

	m.Unpin(0)
	require.Equal(t, 1, m.Pins(0))
	m.Unpin(0)
	require.Equal(t, 0, m.Pins(0))
	require.Equal(t, 1, m.Resident())

	// Unpinning an unknown buffer is a no-op.
	m.Unpin(7)
}

func TestManager_EmptyFile(t *testing.T) {
	t.Parallel()

	m, err := Open(writeFile(t, "empty.csv", nil), Options{BufferSize: 16})
	require.NoError(t, err)
	defer m.Close()

	b, err := m.GetBuffer(0)
	require.NoError(t, err)
	require.Equal(t, 0, b.ActualSize())
	require.True(t, b.Last)

	_, err = m.GetBuffer(1)
	require.ErrorIs(t, err, io.EOF)
}

func TestManager_LZ4Stream(t *testing.T) {
	t.Parallel()

	data := []byte(strings.Repeat("0123456789\n", 50)) // 550 bytes
	m, err := Open(writeLZ4(t, "f.csv.lz4", data), Options{BufferSize: 64})
	require.NoError(t, err)
	defer m.Close()

	require.False(t, m.Seekable())

	// Jumping ahead forces every earlier buffer to load and stay resident.
	b, err := m.GetBuffer(3)
	require.NoError(t, err)
	require.Equal(t, int64(192), b.Offset)
	require.Equal(t, 4, m.Resident())

	_, err = m.Pin(1)
	require.NoError(t, err)
	m.Unpin(1)
	require.Equal(t, 4, m.Resident(), "stream buffers are never evicted")

	require.Equal(t, data, readAll(t, m))
}

func TestManager_LZ4ExactMultiple(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("x"), 128)
	m, err := Open(writeLZ4(t, "f.lz4", data), Options{BufferSize: 64})
	require.NoError(t, err)
	defer m.Close()

	b, err := m.GetBuffer(1)
	require.NoError(t, err)
	require.True(t, b.Last)
	_, err = m.GetBuffer(2)
	require.ErrorIs(t, err, io.EOF)
}

func TestManager_Closed(t *testing.T) {
	t.Parallel()

	m, err := Open(writeFile(t, "f.csv", []byte("a")), Options{})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.GetBuffer(0)
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpen_Missing(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
