package extract

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/models"
)

// Notes returns the note metadata used for wikilink completion,
// consulting the cache first. On a miss it lists the vault through the
// search tool (or fallback walk), stats each file, and reads titles and
// aliases from frontmatter with the restricted scanner. Metadata is
// rebuilt wholesale on every refresh; entries are never mutated in
// place.
func (e *Extractor) Notes(ctx context.Context, root string) ([]models.NoteMetadata, error) {
	key := cache.Key("wikilinks", root, "")
	if v, ok := e.cache.Get(StoreWikilinks, key); ok {
		if notes, ok := v.([]models.NoteMetadata); ok {
			return notes, nil
		}
	}

	var notes []models.NoteMetadata
	err := e.guarded(ctx, "wikilinks", func(ctx context.Context) error {
		res, err := e.runner.Run(ctx, e.request("", root))
		if err != nil {
			return err
		}

		var backlinks map[string]int
		if e.backlinks != nil {
			backlinks = e.backlinks(ctx)
		}

		batch := e.BatchSize()
		collected := make([]models.NoteMetadata, 0, len(res.Lines))
		for start := 0; start < len(res.Lines); start += batch {
			if ctx.Err() != nil {
				break // truncate, keep what we have
			}
			end := start + batch
			if end > len(res.Lines) {
				end = len(res.Lines)
			}
			for _, line := range res.Lines[start:end] {
				rel := e.relativize(line, root)
				meta, ok := e.noteMetadata(ctx, rel, backlinks)
				if !ok {
					continue
				}
				collected = append(collected, meta)
			}
		}

		sort.Slice(collected, func(i, j int) bool {
			if collected[i].Backlinks != collected[j].Backlinks {
				return collected[i].Backlinks > collected[j].Backlinks
			}
			return collected[i].RelativePath < collected[j].RelativePath
		})

		notes = collected
		e.cache.Set(StoreWikilinks, key, notes, cache.WithTags(TagVault, StoreWikilinks))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// noteMetadata builds the metadata for one vault file. Slow or
// unreadable files are skipped, not fatal.
func (e *Extractor) noteMetadata(ctx context.Context, rel string, backlinks map[string]int) (models.NoteMetadata, bool) {
	info, err := e.vault.Stat(rel)
	if err != nil {
		return models.NoteMetadata{}, false
	}

	meta := models.NoteMetadata{
		Filename:     path.Base(rel),
		FilePath:     path.Join(e.vault.Root(), rel),
		RelativePath: rel,
		Size:         info.Size,
		ModTime:      info.ModTime,
		Backlinks:    backlinkCount(backlinks, rel),
	}

	lines, err := e.vault.ReadLines(ctx, rel, maxFrontmatterLines+2)
	if err == nil {
		fields := scanFrontmatter(lines)
		if titles := fields["title"]; len(titles) > 0 {
			meta.Title = titles[0]
		}
		if aliases := fields["aliases"]; len(aliases) > 0 {
			meta.Aliases = aliases
		} else if aliases := fields["alias"]; len(aliases) > 0 {
			meta.Aliases = aliases
		}
	}
	return meta, true
}

// LinkTarget returns the wikilink target for a note: the relative path
// without the markdown extension.
func LinkTarget(meta models.NoteMetadata) string {
	return strings.TrimSuffix(meta.RelativePath, path.Ext(meta.RelativePath))
}

// backlinkCount resolves the reference count for the note at rel. Counts
// are keyed by link target as written in notes: a path stem
// ("notes/Project") or, for nested notes linked by bare name, just the
// basename ("Project"). Both forms are tried.
func backlinkCount(counts map[string]int, rel string) int {
	if len(counts) == 0 {
		return 0
	}
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	if n, ok := counts[stem]; ok {
		return n
	}
	return counts[path.Base(stem)]
}
