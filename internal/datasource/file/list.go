// Package file resolves the input file set of an ingest job from literal
// paths, glob patterns, and list files.
package file

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ReadList reads a text file line by line and returns its non-empty,
// non-comment lines in order. Lines starting with '#' (after trimming) are
// skipped. Relative entries are resolved against the list file's directory.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := filepath.Dir(path)
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
