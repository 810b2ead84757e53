package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func listPaths(t *testing.T, f *FS) []string {
	t.Helper()
	infos, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	slices.Sort(paths)
	return paths
}

func TestNewFSRejectsMissingRoot(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Error("expected error for a nonexistent root")
	}
}

func TestListIncludesAndExcludes(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.md":          "a",
		"sub/b.md":      "b",
		"notes.txt":     "not a note",
		".git/c.md":     "hidden",
		"sub/.git/d.md": "nested hidden",
	})
	f, err := NewFS(dir, Options{Includes: []string{".md"}, Excludes: []string{".git"}})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	got := listPaths(t, f)
	want := []string{"a.md", "sub/b.md"}
	if !slices.Equal(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestListFileCap(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.md": "a", "b.md": "b", "c.md": "c"})
	f, err := NewFS(dir, Options{MaxFiles: 2})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if got := listPaths(t, f); len(got) != 2 {
		t.Errorf("paths = %v, want 2 entries", got)
	}
}

func TestListDepthLimit(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.md":           "a",
		"sub/b.md":       "b",
		"sub/deep/c.md":  "c",
		"sub/deep/d2.md": "d",
	})
	f, err := NewFS(dir, Options{MaxDepth: 1})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	got := listPaths(t, f)
	want := []string{"a.md", "sub/b.md"}
	if !slices.Equal(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestSafePathTraversal(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.md": "a"})
	f, err := NewFS(dir, Options{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	if _, err := f.Read("../escape.md"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("traversal error = %v, want ErrValidation", err)
	}
	if _, err := f.Stat("/etc/passwd"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("absolute path error = %v, want ErrValidation", err)
	}
	if f.Readable("../escape.md") {
		t.Error("traversal path should not be readable")
	}
}

func TestReadSizeCap(t *testing.T) {
	dir := writeFiles(t, map[string]string{"big.md": strings.Repeat("x", 100)})
	f, err := NewFS(dir, Options{MaxFileSize: 10})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	data, err := f.Read("big.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 10 {
		t.Errorf("read %d bytes, want 10", len(data))
	}
}

func TestReadLinesCap(t *testing.T) {
	dir := writeFiles(t, map[string]string{"notes.md": "1\n2\n3\n4\n5\n"})
	f, err := NewFS(dir, Options{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	lines, err := f.ReadLines(context.Background(), "notes.md", 3)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if !slices.Equal(lines, []string{"1", "2", "3"}) {
		t.Errorf("lines = %v", lines)
	}
}

func TestReadLinesContextAbort(t *testing.T) {
	dir := writeFiles(t, map[string]string{"notes.md": "1\n2\n3\n"})
	f, err := NewFS(dir, Options{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.ReadLines(ctx, "notes.md", 0); !errors.Is(err, apperr.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestStatAndReadable(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.md": "hello"})
	f, err := NewFS(dir, Options{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	info, err := f.Stat("a.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 || info.Path != "a.md" {
		t.Errorf("info = %+v", info)
	}
	if !f.Readable("a.md") {
		t.Error("existing file should be readable")
	}
	if f.Readable("missing.md") {
		t.Error("missing file should not be readable")
	}
}
