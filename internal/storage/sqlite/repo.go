// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. It performs batched INSERTs
// inside a transaction; SQLite has no bulk-load API like Postgres COPY, but
// one transaction per batch keeps throughput acceptable for moderate volumes.
//
// The pool is limited to a single connection. SQLite allows one writer at a
// time and ":memory:" databases exist per connection, so the loader and the
// rejects writer share that connection in turn.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"

	_ "modernc.org/sqlite"
)

// Dialect renders SQLite DDL: double-quoted identifiers and
// CREATE TABLE IF NOT EXISTS.
var Dialect = ddl.Dialect{
	Name:       "sqlite ddl",
	QuoteIdent: ddl.DoubleQuote,
	MapType:    MapType,
}

// MapType maps a logical type onto a SQLite affinity. Booleans are stored as
// INTEGER 0/1 and temporal values as ISO-8601 TEXT.
func MapType(t schema.Type) string {
	switch t {
	case schema.BigInt, schema.Boolean:
		return "INTEGER"
	case schema.Double:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository opens dsn (a file path or "file:" URI) and returns a
// Repository plus a close function.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db}, func() { db.Close() }, nil
}

// CopyFrom inserts rows into table inside a single transaction using a
// prepared INSERT. len(row) must equal len(columns) for every row.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		Dialect.QuoteFQN(table),
		strings.Join(Dialect.QuoteIdents(columns), ", "),
		placeholders,
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Exec executes a single statement, typically DDL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// QueryCount returns SELECT COUNT(*) for table. Used by tests and the CLI
// summary.
func (r *Repository) QueryCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Dialect.QuoteFQN(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	return n, nil
}

// DB exposes the underlying handle for read-side queries.
func (r *Repository) DB() *sql.DB { return r.db }
