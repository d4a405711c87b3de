package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestReadList_CommentsAndRelative(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := touch(t, dir, "list.txt", "\n# comment\nb.csv\n   # indented comment\n/abs/c.csv\n\n")

	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList error: %v", err)
	}
	want := []string{filepath.Join(dir, "b.csv"), "/abs/c.csv"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadList = %#v, want %#v", got, want)
	}
}

func TestExpand_OrderAndDedup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := touch(t, dir, "a.csv", "x")
	b := touch(t, dir, "b.csv", "x")
	c := touch(t, dir, "c.csv", "x")
	list := touch(t, dir, "files.txt", "c.csv\na.csv\n")

	got, err := Expand(context.Background(), []string{
		b,
		filepath.Join(dir, "*.csv"),
		"@" + list,
	})
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	want := []string{b, a, c}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpand_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name     string
		patterns []string
	}{
		{"missing literal", []string{filepath.Join(dir, "nope.csv")}},
		{"glob without matches", []string{filepath.Join(dir, "*.tsv")}},
		{"directory", []string{dir}},
		{"empty list file", []string{"@" + touch(t, dir, "empty.txt", "# nothing\n")}},
		{"nothing at all", nil},
	}
	for _, tc := range tests {
		if _, err := Expand(context.Background(), tc.patterns); err == nil {
			t.Fatalf("%s: Expand error = nil, want error", tc.name)
		}
	}
}

func TestExpand_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Expand(ctx, []string{"x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
