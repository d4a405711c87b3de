// Package mysql implements a MySQL-backed storage.Repository. Batches are
// written as multi-row INSERT statements, split so that no statement exceeds
// the server's placeholder limit.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"
)

// maxPlaceholders is MySQL's prepared-statement parameter limit.
const maxPlaceholders = 65535

// Dialect renders MySQL DDL with backtick-quoted identifiers.
var Dialect = ddl.Dialect{
	Name:       "mysql ddl",
	QuoteIdent: myIdent,
	MapType:    MapType,
}

// MapType maps a logical type onto a MySQL column type.
func MapType(t schema.Type) string {
	switch t {
	case schema.BigInt:
		return "BIGINT"
	case schema.Double:
		return "DOUBLE"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "DATETIME(6)"
	default:
		return "LONGTEXT"
	}
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository validates dsn, opens and pings the database, and returns a
// close function. parseTime is forced on so DATE/DATETIME round-trip as
// time.Time.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db}, func() { _ = db.Close() }, nil
}

// CopyFrom inserts rows into table with multi-row INSERTs in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}

	var inserted int64
	for _, chunk := range chunkRows(rows, maxPlaceholders/len(columns)) {
		stmt, args, err := buildInsert(table, columns, chunk)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("mysql: insert: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	return inserted, nil
}

// Exec runs a single statement.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

func buildInsert(table string, columns []string, rows [][]any) (string, []any, error) {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ",
		Dialect.QuoteFQN(table), strings.Join(Dialect.QuoteIdents(columns), ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("mysql: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
		args = append(args, row...)
	}
	return sb.String(), args, nil
}

func chunkRows(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = 1
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
