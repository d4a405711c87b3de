package storage

import (
	"context"
	"fmt"
	"sync"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"
)

// dialects maps a storage kind to the DDL flavour its backend speaks:
// identifier quoting, logical type mapping and the existence guard. Backends
// (postgres, mssql, mysql, sqlite) register theirs at init time so that
// EnsureTable can create the destination and rejects tables without knowing
// which backend is in use.
var (
	ddlMu    sync.RWMutex
	dialects = map[string]ddl.Dialect{}
)

// RegisterDDL registers (or replaces) the DDL dialect for the given storage
// kind. It is typically called from backend packages' init functions.
func RegisterDDL(kind string, d ddl.Dialect) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	dialects[kind] = d
}

// DialectFor returns the dialect registered for kind.
func DialectFor(kind string) (ddl.Dialect, error) {
	ddlMu.RLock()
	d, ok := dialects[kind]
	ddlMu.RUnlock()
	if !ok {
		return ddl.Dialect{}, fmt.Errorf("no DDL dialect registered for storage.kind=%q", kind)
	}
	return d, nil
}

// EnsureTable renders td in the dialect registered for kind and applies it
// through repo.Exec. Backends render idempotent statements, so repeated calls
// are safe.
func EnsureTable(ctx context.Context, kind string, repo Repository, td ddl.TableDef) error {
	d, err := DialectFor(kind)
	if err != nil {
		return err
	}
	stmt, err := d.CreateTableSQL(td)
	if err != nil {
		return fmt.Errorf("storage: render ddl for %s: %w", td.FQN, err)
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("storage: apply ddl for %s: %w", td.FQN, err)
	}
	return nil
}

// SQLType maps a logical type to kind's SQL type.
func SQLType(kind string, t schema.Type) (string, error) {
	d, err := DialectFor(kind)
	if err != nil {
		return "", err
	}
	if d.MapType == nil {
		return "", fmt.Errorf("storage: kind %q has no type mapping", kind)
	}
	return d.MapType(t), nil
}
