// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render CREATE TABLE statements from that model.
//
// BuildCreateTableSQL is the generic baseline: it does not quote identifiers
// and emits no IF NOT EXISTS. Backends describe their flavour with a Dialect
// (identifier quoting, type mapping, and the existence guard) and render via
// Dialect.CreateTableSQL.
package ddl

import (
	"fmt"
	"strings"

	"csvingest/internal/schema"
)

// Dialect captures the parts of CREATE TABLE rendering that differ between
// backends.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite ddl".
	Name string
	// QuoteIdent quotes one identifier segment. Nil leaves names as-is.
	QuoteIdent func(string) string
	// MapType maps a logical type to a SQL type when ColumnDef.SQLType is
	// empty. Nil leaves such columns invalid.
	MapType func(schema.Type) string
	// Guard wraps the rendered CREATE TABLE body. quotedFQN is the quoted
	// table name and cols the rendered column list. Nil renders a plain
	// CREATE TABLE IF NOT EXISTS.
	Guard func(quotedFQN, cols string) string
	// Indent is the per-column indent used inside the column list.
	Indent string
}

// Generic is the unquoted, guard-free dialect used by BuildCreateTableSQL.
var Generic = Dialect{
	Name:   "ddl",
	Indent: "  ",
	Guard: func(fqn, cols string) string {
		return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", fqn, cols)
	},
}

// BuildCreateTableSQL renders a generic CREATE TABLE statement from a TableDef.
//
// A column is rendered as:
//
//	<Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
// Columns with PrimaryKey == true are collected into a trailing
// PRIMARY KEY (...) clause.
func BuildCreateTableSQL(t TableDef) (string, error) {
	return Generic.CreateTableSQL(t)
}

// CreateTableSQL renders t in dialect d.
func (d Dialect) CreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", d.Name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" && d.MapType != nil {
			typ = d.MapType(c.Type)
		}
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", d.Name, name)
		}

		var sb strings.Builder
		sb.WriteString(d.quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		// Primary-key columns are always NOT NULL.
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	indent := d.Indent
	if indent == "" {
		indent = "  "
	}
	body := strings.Join(cols, ",\n"+indent)
	qfqn := d.QuoteFQN(fqn)

	if d.Guard == nil {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s%s\n);", qfqn, indent, body), nil
	}
	return d.Guard(qfqn, body), nil
}

// QuoteFQN quotes every non-empty dotted segment of fqn.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.quote(p))
	}
	return strings.Join(out, ".")
}

// QuoteIdents quotes each name in names.
func (d Dialect) QuoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.quote(n)
	}
	return out
}

func (d Dialect) quote(id string) string {
	if d.QuoteIdent == nil {
		return id
	}
	return d.QuoteIdent(id)
}

// DoubleQuote is the ANSI identifier quoting shared by SQLite and Postgres.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
