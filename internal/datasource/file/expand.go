package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Expand turns source patterns into an ordered, de-duplicated file list.
//
// Each pattern is one of:
//   - "@list.txt": every entry of the list file (see ReadList), each of
//     which may itself be a glob;
//   - a glob containing *, ?, or [: its matches in lexical order;
//   - a literal path, which must exist.
//
// A pattern that matches nothing is an error; the scan would otherwise
// silently ingest less than asked.
func Expand(ctx context.Context, patterns []string) ([]string, error) {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	add := func(p string) {
		p = filepath.Clean(p)
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	var expand func(pattern string, depth int) error
	expand = func(pattern string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(pattern, "@"):
			if depth > 0 {
				return fmt.Errorf("expand %s: nested list files are not supported", pattern)
			}
			entries, err := ReadList(strings.TrimPrefix(pattern, "@"))
			if err != nil {
				return fmt.Errorf("expand %s: %w", pattern, err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("expand %s: list is empty", pattern)
			}
			for _, e := range entries {
				if err := expand(e, depth+1); err != nil {
					return err
				}
			}
		case strings.ContainsAny(pattern, "*?["):
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return fmt.Errorf("expand %s: %w", pattern, err)
			}
			files := matches[:0]
			for _, m := range matches {
				if st, err := os.Stat(m); err == nil && st.Mode().IsRegular() {
					files = append(files, m)
				}
			}
			if len(files) == 0 {
				return fmt.Errorf("expand %s: no files match", pattern)
			}
			sort.Strings(files)
			for _, m := range files {
				add(m)
			}
		default:
			st, err := os.Stat(pattern)
			if err != nil {
				return fmt.Errorf("expand %s: %w", pattern, err)
			}
			if st.IsDir() {
				return fmt.Errorf("expand %s: is a directory", pattern)
			}
			add(pattern)
		}
		return nil
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := expand(p, 0); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("expand: no input files")
	}
	return out, nil
}
