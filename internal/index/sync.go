package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/vault"
)

// SearchResult is one full-text search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(ctx context.Context, db *DB, v vault.Provider, logger *slog.Logger) error {
	files, err := v.List(ctx)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}

		data, err := v.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if checksums[f.Path] == checksum.Sum(data) {
			continue
		}
		if err := indexFile(db, f.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", f.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, path string, data []byte) error {
	doc := extract.ParseNote(data)

	row := NoteRow{
		Path:      path,
		Title:     doc.Title,
		Aliases:   doc.Aliases,
		Tags:      doc.Tags,
		Checksum:  checksum.Sum(data),
		Size:      int64(len(data)),
		UpdatedAt: time.Now(),
	}
	return db.UpsertNote(row, doc.Body, doc.Links)
}
