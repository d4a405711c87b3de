package csvscan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineCache_SharesByDialect(t *testing.T) {
	t.Parallel()

	c := NewStateMachineCache()
	d := Dialect{Delimiter: ',', Quote: '"', Escape: '"', HasHeader: true}
	a, err := c.Get(d)
	require.NoError(t, err)
	b, err := c.Get(d)
	require.NoError(t, err)
	require.Same(t, a, b)

	d2 := d
	d2.Delimiter = ';'
	require.NotEqual(t, d.Hash(), d2.Hash())
	other, err := c.Get(d2)
	require.NoError(t, err)
	require.NotSame(t, a, other)
	require.Equal(t, 2, c.Len())

	_, err = c.Get(Dialect{Delimiter: ',', Encoding: "ebcdic"})
	require.ErrorContains(t, err, "unsupported encoding")
}

func TestNewStateMachine_Classes(t *testing.T) {
	t.Parallel()

	sm, err := NewStateMachine(Dialect{Delimiter: '|', Quote: '\'', Escape: '\\', Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Equal(t, classDelimiter, sm.class['|'])
	require.Equal(t, classQuote, sm.class['\''])
	require.Equal(t, classEscape, sm.class['\\'])
	require.Equal(t, classCR, sm.class['\r'])
	require.Equal(t, classOrdinary, sm.class[','])
	require.False(t, sm.utf8Input())
}
