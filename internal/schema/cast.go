package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CastOptions controls how raw strings are converted into typed values.
type CastOptions struct {
	// DateFormat is a Go time layout for Date columns. Empty means ISO-8601
	// (2006-01-02) with a DD.MM.YYYY fallback.
	DateFormat string
	// TimestampFormat is a Go time layout for Timestamp columns. Empty means
	// RFC 3339 with a "2006-01-02 15:04:05" fallback.
	TimestampFormat string
	// NullString is the raw value treated as NULL in addition to "".
	NullString string
}

// Caster converts one raw value into dst. It returns an error describing why
// the value could not be cast; dst is left untouched on failure.
type Caster func(dst *any, s string) error

// CompileCasters prebuilds one Caster per column so the scan hot loop does
// no type switching or map lookups.
func CompileCasters(cols []Column, opt CastOptions) []Caster {
	out := make([]Caster, len(cols))
	for i, c := range cols {
		out[i] = compileCaster(c.Type, opt)
	}
	return out
}

func compileCaster(t Type, opt CastOptions) Caster {
	isNull := func(s string) bool {
		return s == "" || (opt.NullString != "" && s == opt.NullString)
	}

	switch t {
	case BigInt:
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
				return nil
			}
			v, ok := toIntFast(s)
			if !ok {
				return fmt.Errorf("could not convert string %q to BIGINT", s)
			}
			*dst = v
			return nil
		}

	case Double:
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
				return nil
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("could not convert string %q to DOUBLE", s)
			}
			*dst = v
			return nil
		}

	case Boolean:
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
				return nil
			}
			v, ok := toBoolFast(s)
			if !ok {
				return fmt.Errorf("could not convert string %q to BOOLEAN", s)
			}
			*dst = v
			return nil
		}

	case Date:
		layouts := []string{"2006-01-02", "02.01.2006"}
		if opt.DateFormat != "" {
			layouts = []string{opt.DateFormat}
		}
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
				return nil
			}
			for _, l := range layouts {
				if v, err := time.Parse(l, s); err == nil {
					*dst = v
					return nil
				}
			}
			return fmt.Errorf("could not convert string %q to DATE", s)
		}

	case Timestamp:
		layouts := []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
		if opt.TimestampFormat != "" {
			layouts = []string{opt.TimestampFormat}
		}
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
				return nil
			}
			for _, l := range layouts {
				if v, err := time.Parse(l, s); err == nil {
					*dst = v
					return nil
				}
			}
			return fmt.Errorf("could not convert string %q to TIMESTAMP", s)
		}

	default:
		return func(dst *any, s string) error {
			if isNull(s) {
				*dst = nil
			} else {
				*dst = s
			}
			return nil
		}
	}
}

// toIntFast parses integers and only falls back to float parsing when the
// field contains a '.' (accepting inputs like "42.0").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

func toBoolFast(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}
