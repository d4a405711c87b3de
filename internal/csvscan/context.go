package csvscan

import (
	"sync/atomic"

	"go.uber.org/zap"

	"csvingest/internal/rejects"
)

// ClientContext is the per-session state shared by every scan of a session.
type ClientContext struct {
	// QueryID identifies the scan; it becomes scan_id in the rejects tables.
	QueryID uint64
	// DebugSetMaxLineLength asks the coordinator to publish the longest line
	// of the first file when the scan finishes.
	DebugSetMaxLineLength bool
	StateMachines         *StateMachineCache
	// Rejects is required when a scan stores rejects.
	Rejects *rejects.Registry
	Logger  *zap.Logger

	debugMaxLineLength atomic.Int64
}

// NewClientContext returns a context with an empty state machine cache.
func NewClientContext(queryID uint64, reg *rejects.Registry, logger *zap.Logger) *ClientContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientContext{
		QueryID:       queryID,
		StateMachines: NewStateMachineCache(),
		Rejects:       reg,
		Logger:        logger,
	}
}

// DebugMaxLineLength is the value published by the last finished scan with
// DebugSetMaxLineLength set.
func (c *ClientContext) DebugMaxLineLength() int64 { return c.debugMaxLineLength.Load() }

func (c *ClientContext) setDebugMaxLineLength(n int64) { c.debugMaxLineLength.Store(n) }

func (c *ClientContext) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
