package csvscan

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Dialect is the resolved CSV syntax of a scan.
type Dialect struct {
	Delimiter byte
	Quote     byte
	Escape    byte
	// NewLine is "\n", "\r\n" or "auto"; the tokenizer accepts any line
	// break and the value is only reported.
	NewLine        string
	HasHeader      bool
	Encoding       string
	QuotedNewlines bool
	MaxLineSize    int
}

// Hash is a stable digest of d used as the state machine cache key.
func (d Dialect) Hash() uint64 {
	h := xxh3.New()
	var hdr [8]byte
	hdr[0], hdr[1], hdr[2] = d.Delimiter, d.Quote, d.Escape
	if d.HasHeader {
		hdr[3] = 1
	}
	if d.QuotedNewlines {
		hdr[4] = 1
	}
	_, _ = h.Write(hdr[:])
	_, _ = h.Write(binary.LittleEndian.AppendUint64(nil, uint64(d.MaxLineSize)))
	_, _ = h.WriteString(d.NewLine)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strings.ToLower(d.Encoding))
	return h.Sum64()
}

type byteClass uint8

const (
	classOrdinary byteClass = iota
	classDelimiter
	classQuote
	classEscape
	classLF
	classCR
)

// StateMachine is the immutable tokenizer table for one dialect.
type StateMachine struct {
	Dialect Dialect
	class   [256]byteClass
	decoder func() *encoding.Decoder
}

// NewStateMachine builds the table for d. It fails on an unknown encoding.
func NewStateMachine(d Dialect) (*StateMachine, error) {
	sm := &StateMachine{Dialect: d}
	switch strings.ToLower(d.Encoding) {
	case "", "utf-8", "utf8":
	case "latin-1", "latin1", "iso-8859-1":
		sm.decoder = charmap.ISO8859_1.NewDecoder
	case "windows-1252", "cp1252":
		sm.decoder = charmap.Windows1252.NewDecoder
	default:
		return nil, fmt.Errorf("csvscan: unsupported encoding %q", d.Encoding)
	}
	sm.class['\n'] = classLF
	sm.class['\r'] = classCR
	sm.class[d.Delimiter] = classDelimiter
	if d.Escape != 0 && d.Escape != d.Quote {
		sm.class[d.Escape] = classEscape
	}
	if d.Quote != 0 {
		sm.class[d.Quote] = classQuote
	}
	return sm, nil
}

// utf8Input reports whether input is validated as UTF-8 rather than decoded.
func (sm *StateMachine) utf8Input() bool { return sm.decoder == nil }

// StateMachineCache shares state machines between the files of a query and
// across queries. It is safe for concurrent use.
type StateMachineCache struct {
	mu sync.Mutex
	m  map[uint64][]*StateMachine
}

// NewStateMachineCache returns an empty cache.
func NewStateMachineCache() *StateMachineCache {
	return &StateMachineCache{m: map[uint64][]*StateMachine{}}
}

// Get returns the state machine for d, building it on first use.
func (c *StateMachineCache) Get(d Dialect) (*StateMachine, error) {
	key := d.Hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sm := range c.m[key] {
		if sm.Dialect == d {
			return sm, nil
		}
	}
	sm, err := NewStateMachine(d)
	if err != nil {
		return nil, err
	}
	c.m[key] = append(c.m[key], sm)
	return sm, nil
}

// Len returns the number of cached state machines.
func (c *StateMachineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.m {
		n += len(v)
	}
	return n
}
