package ddl

import "csvingest/internal/schema"

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Type: logical type, mapped to SQL by a Dialect when SQLType is empty
//   - SQLType: explicit SQL type (e.g., TEXT, BIGINT); overrides Type
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	Type       schema.Type
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "schema.table").
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ColumnNames returns the column names of t in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// FromSchema builds a nullable TableDef for a scan's output columns.
func FromSchema(fqn string, cols []schema.Column) TableDef {
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, len(cols))}
	for i, c := range cols {
		td.Columns[i] = ColumnDef{Name: c.Name, Type: c.Type, Nullable: true}
	}
	return td
}
