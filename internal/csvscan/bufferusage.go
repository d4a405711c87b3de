package csvscan

import (
	"fmt"
	"sync/atomic"

	"csvingest/internal/csvbuffer"
)

// Pinner pins buffers so they stay resident. *csvbuffer.Manager implements it.
type Pinner interface {
	Pin(idx int) (*csvbuffer.Buffer, error)
	Unpin(idx int)
}

// BufferUsage keeps one buffer pinned while any holder references it. The
// coordinator holds one reference for the buffer it is cutting boundaries
// from and every scanner on that buffer holds another; the last Release
// unpins.
type BufferUsage struct {
	pinner Pinner
	buf    *csvbuffer.Buffer
	refs   atomic.Int32
}

// NewBufferUsage pins buffer idx and returns a tracker holding one reference.
func NewBufferUsage(p Pinner, idx int) (*BufferUsage, error) {
	buf, err := p.Pin(idx)
	if err != nil {
		return nil, err
	}
	u := &BufferUsage{pinner: p, buf: buf}
	u.refs.Store(1)
	return u, nil
}

// BufferIdx is the index of the pinned buffer.
func (u *BufferUsage) BufferIdx() int { return u.buf.Index }

// Buffer returns the pinned buffer.
func (u *BufferUsage) Buffer() *csvbuffer.Buffer { return u.buf }

// Retain adds a reference and returns u.
func (u *BufferUsage) Retain() *BufferUsage {
	if u.refs.Add(1) <= 1 {
		panic("internal: retain of released buffer usage")
	}
	return u
}

// Release drops a reference, unpinning the buffer with the last one.
func (u *BufferUsage) Release() {
	switch n := u.refs.Add(-1); {
	case n == 0:
		u.pinner.Unpin(u.buf.Index)
	case n < 0:
		panic(fmt.Sprintf("internal: buffer usage for buffer %d released %d times too often", u.buf.Index, -n))
	}
}

// Refs returns the current reference count.
func (u *BufferUsage) Refs() int { return int(u.refs.Load()) }
