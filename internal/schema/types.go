// Package schema defines the logical column model shared by the scanner, the
// DDL renderers, and the rejects tables.
package schema

import (
	"fmt"
	"strings"
)

// Type is a logical column type. Storage backends map it onto a concrete SQL
// type; the scanner uses it to cast raw CSV values.
type Type int

const (
	Varchar Type = iota
	BigInt
	Double
	Boolean
	Date
	Timestamp
)

var typeNames = [...]string{
	Varchar:   "varchar",
	BigInt:    "bigint",
	Double:    "double",
	Boolean:   "boolean",
	Date:      "date",
	Timestamp: "timestamp",
}

// String returns the canonical lowercase name of t.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType resolves a type name, accepting the common aliases found in
// pipeline files ("int", "text", "bool", "float", "datetime").
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "varchar", "text", "string":
		return Varchar, nil
	case "bigint", "int", "integer":
		return BigInt, nil
	case "double", "float", "real":
		return Double, nil
	case "boolean", "bool":
		return Boolean, nil
	case "date":
		return Date, nil
	case "timestamp", "datetime":
		return Timestamp, nil
	default:
		return Varchar, fmt.Errorf("schema: unknown type %q", s)
	}
}

// Column is one named, typed column of a scan's output.
type Column struct {
	Name string
	Type Type
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Describe renders cols as "{'a': 'BIGINT', 'b': 'VARCHAR'}", the form stored
// in the rejects scans table.
func Describe(cols []Column) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "'%s': '%s'", c.Name, strings.ToUpper(c.Type.String()))
	}
	sb.WriteByte('}')
	return sb.String()
}
