// Package postgres implements a Postgres repository using pgx v5. Batches are
// written with the COPY protocol through a pgxpool connection pool; schema
// qualified table names are split into a pgx.Identifier so both parts are
// quoted.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvingest/internal/ddl"
	"csvingest/internal/schema"
)

// Dialect renders Postgres DDL with double-quoted identifiers.
var Dialect = ddl.Dialect{
	Name:       "postgres ddl",
	QuoteIdent: ddl.DoubleQuote,
	MapType:    MapType,
}

// MapType maps a logical type onto a Postgres column type.
func MapType(t schema.Type) string {
	switch t {
	case schema.BigInt:
		return "BIGINT"
	case schema.Double:
		return "DOUBLE PRECISION"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository parses dsn, builds a pool, and returns a close function.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	return &Repository{pool: pool}, pool.Close, nil
}

// CopyFrom streams rows into table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("postgres: copy into %s: %s (%s)", table, pgErr.Detail, pgErr.SQLState())
		}
		return n, fmt.Errorf("postgres: copy into %s: %w", table, err)
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.pool.Exec(ctx, sqlText); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// splitFQN converts "schema.table" into pgx.Identifier{"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}
