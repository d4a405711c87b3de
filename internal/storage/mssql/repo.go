// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Each batch is streamed through mssql.CopyIn inside
// one transaction, so a failed batch leaves the target table untouched.
// DDL uses bracket-quoted identifiers and an OBJECT_ID guard in place of
// CREATE TABLE IF NOT EXISTS.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"
)

// Dialect renders T-SQL DDL: bracket-quoted identifiers and an
// IF OBJECT_ID(...) IS NULL guard, since T-SQL has no CREATE TABLE IF NOT
// EXISTS.
var Dialect = ddl.Dialect{
	Name:       "mssql ddl",
	QuoteIdent: msIdent,
	MapType:    MapType,
	Indent:     "    ",
	Guard: func(fqn, cols string) string {
		return fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
			fqn, fqn, cols,
		)
	},
}

// MapType maps a logical type onto a SQL Server column type. Unknown kinds
// fall back to NVARCHAR(MAX).
func MapType(t schema.Type) string {
	switch t {
	case schema.BigInt:
		return "BIGINT"
	case schema.Double:
		return "FLOAT"
	case schema.Boolean:
		return "BIT"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository validates dsn, opens and pings the database, and returns a
// close function.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, nil, fmt.Errorf("mssql: dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db}, func() { _ = db.Close() }, nil
}

// CopyFrom bulk-inserts rows into table inside a transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// Exec runs a single T-SQL batch.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
