// Package storage contains storage-agnostic contracts and utilities: the
// Repository interface, a factory registry that backends join from init, the
// per-backend DDL dialect registry, and a batched loader.
//
// Callers never import a backend directly. The binary blank-imports
// storage/all, each backend registers a Factory and a ddl.Dialect for its
// kind, and New and EnsureTable dispatch on the configured storage.kind. One
// Repository serves both the destination table and the rejects tables of a
// run.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is the write surface every backend provides. A single
// repository may serve several tables (the data table plus rejects tables).
type Repository interface {
	// CopyFrom bulk-inserts rows (aligned to columns) into table and returns
	// the number of rows the backend reports as inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	// Close releases the connection pool.
	Close()
}

// Config is the backend-neutral connection configuration.
type Config struct {
	Kind string
	DSN  string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
