// Package vault defines the read-only note vault abstraction.
//
// All vault reads in hot paths go through the bounded helpers here;
// callers never touch the filesystem directly.
package vault

import (
	"context"
	"time"
)

// FileInfo describes one vault file. Path is relative to the vault root
// with forward slashes.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Provider is the interface for vault file access.
type Provider interface {
	// Root returns the absolute vault root directory.
	Root() string
	// List returns info for every note file under the root, honoring the
	// configured include suffixes, exclusion globs, and file cap.
	List(ctx context.Context) ([]FileInfo, error)
	// Stat returns info for a single vault file.
	Stat(path string) (FileInfo, error)
	// Read returns the raw bytes of a vault file, capped at the configured
	// maximum file size.
	Read(path string) ([]byte, error)
	// ReadLines returns up to maxLines lines of a vault file, aborting
	// when ctx is done.
	ReadLines(ctx context.Context, path string, maxLines int) ([]string, error)
	// Readable reports whether the file exists and is a readable regular file.
	Readable(path string) bool
}
