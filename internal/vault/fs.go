package vault

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/ansuz/internal/apperr"
)

// Options bounds FS traversal and reads.
type Options struct {
	Includes    []string // file suffixes, e.g. ".md"
	Excludes    []string // names or globs matched against relative paths
	MaxFileSize int64
	MaxFiles    int
	MaxDepth    int
}

// FS implements Provider backed by the local file system.
type FS struct {
	root     string // absolute path to vault directory
	includes []string
	excludes []string // doublestar patterns, expanded
	maxSize  int64
	maxFiles int
	maxDepth int
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts Options) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}

	includes := opts.Includes
	if len(includes) == 0 {
		includes = []string{".md"}
	}

	// Each exclusion covers both the bare name and any nesting of it.
	var excludes []string
	for _, e := range opts.Excludes {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		excludes = append(excludes, e, "**/"+e, e+"/**", "**/"+e+"/**")
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 2000
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}

	return &FS{
		root:     abs,
		includes: includes,
		excludes: excludes,
		maxSize:  maxSize,
		maxFiles: maxFiles,
		maxDepth: maxDepth,
	}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("vault: absolute paths not allowed: %s: %w", rel, apperr.ErrValidation)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("vault: path escapes vault root: %s: %w", rel, apperr.ErrValidation)
	}
	return abs, nil
}

// excluded reports whether a relative slash path matches any exclusion glob.
func (f *FS) excluded(rel string) bool {
	for _, pat := range f.excludes {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// included reports whether the file name carries one of the note suffixes.
func (f *FS) included(name string) bool {
	for _, suf := range f.includes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// List walks the vault and returns info for every note file, applying
// exclusions, the depth limit, and the file cap. Hitting the cap
// truncates the listing rather than failing.
func (f *FS) List(ctx context.Context) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.Count(rel, "/")+1 > f.maxDepth {
				return filepath.SkipDir
			}
			if f.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !f.included(d.Name()) || f.excluded(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		out = append(out, FileInfo{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		if len(out) >= f.maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	return out, nil
}

// Stat returns info for a single vault file.
func (f *FS) Stat(path string) (FileInfo, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("vault: stat %s: %w", path, err)
	}
	return FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Readable reports whether path is an existing regular file.
func (f *FS) Readable(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the raw bytes of a vault file, capped at the configured
// maximum file size.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	return data, nil
}

// ReadLines returns up to maxLines lines of a vault file. The read aborts
// with the context error when ctx is done, so per-file timeouts are
// enforced by the caller's context.
func (f *FS) ReadLines(ctx context.Context, path string, maxLines int) ([]string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	sc := bufio.NewScanner(io.LimitReader(file, f.maxSize))
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return lines, fmt.Errorf("vault: read %s: %w", path, apperr.ErrTimeout)
		}
		lines = append(lines, sc.Text())
		if maxLines > 0 && len(lines) >= maxLines {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return lines, fmt.Errorf("vault: scan %s: %w", path, err)
	}
	return lines, nil
}
