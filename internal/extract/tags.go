package extract

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/models"
)

// Search patterns for the two tag passes. The inline pattern matches
// bare #tag occurrences; the frontmatter pattern locates files with a
// tags: field whose block is then read with the restricted scanner.
const (
	inlineTagPattern = `(^|\s)#[A-Za-z][A-Za-z0-9_/-]*`
	frontmatterHint  = `^tags\s*:`
)

// Tags returns the ranked tag entries for the vault rooted at root,
// consulting the cache first. On a miss it runs the inline and
// frontmatter passes in parallel and aggregates frequency counts.
func (e *Extractor) Tags(ctx context.Context, root string) ([]models.TagEntry, error) {
	key := cache.Key("tags", root, "")
	if v, ok := e.cache.Get(StoreTags, key); ok {
		if entries, ok := v.([]models.TagEntry); ok {
			return entries, nil
		}
	}

	var entries []models.TagEntry
	err := e.guarded(ctx, "tags", func(ctx context.Context) error {
		counts := make(map[string]int)

		g, gCtx := errgroup.WithContext(ctx)
		inlineCh := make(chan []string, 1)
		fmCh := make(chan []string, 1)

		g.Go(func() error {
			raw, err := e.inlineTagPass(gCtx, root)
			inlineCh <- raw
			return err
		})
		g.Go(func() error {
			raw, err := e.frontmatterTagPass(gCtx, root)
			fmCh <- raw
			return err
		})
		err := g.Wait()

		for _, raw := range append(<-inlineCh, <-fmCh...) {
			if tag, ok := e.normalizeTag(raw); ok {
				counts[tag]++
			}
		}

		// Partial results from a failed pass still rank; only a pass that
		// produced nothing propagates its error.
		if err != nil && len(counts) == 0 {
			return err
		}

		entries = rankTags(counts)
		e.cache.Set(StoreTags, key, entries, cache.WithTags(TagVault, StoreTags))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// inlineTagPass extracts raw #tag matches across the vault.
func (e *Extractor) inlineTagPass(ctx context.Context, root string) ([]string, error) {
	res, err := e.runner.Run(ctx, e.request(inlineTagPattern, root))
	if err != nil {
		return nil, err
	}
	raw := make([]string, 0, len(res.Lines))
	for _, line := range res.Lines {
		// Lines are "path:match"; the match may itself lead with the
		// whitespace captured by the pattern.
		_, match, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if i := strings.IndexByte(match, '#'); i >= 0 {
			raw = append(raw, match[i:])
		}
	}
	return raw, nil
}

// frontmatterTagPass finds files whose frontmatter declares tags and
// scans each block with the restricted scanner, bounded by the batch
// size.
func (e *Extractor) frontmatterTagPass(ctx context.Context, root string) ([]string, error) {
	res, err := e.runner.Run(ctx, e.request(frontmatterHint, root))
	if err != nil {
		return nil, err
	}

	// Deduplicate paths from "path:match" lines (fallback output may
	// repeat a path per matched line).
	seen := make(map[string]struct{})
	var paths []string
	for _, line := range res.Lines {
		path, _, ok := strings.Cut(line, ":")
		if !ok {
			path = line
		}
		path = e.relativize(path, root)
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	var (
		raw   []string
		batch = e.BatchSize()
	)
	for start := 0; start < len(paths); start += batch {
		if ctx.Err() != nil {
			break // truncate, keep what we have
		}
		end := start + batch
		if end > len(paths) {
			end = len(paths)
		}
		for _, path := range paths[start:end] {
			lines, readErr := e.vault.ReadLines(ctx, path, maxFrontmatterLines+2)
			if readErr != nil {
				continue
			}
			fields := scanFrontmatter(lines)
			raw = append(raw, fields["tags"]...)
		}
	}
	return raw, nil
}

// relativize strips the root prefix the search tool includes in output
// paths; fallback output is already relative.
func (e *Extractor) relativize(path, root string) string {
	if rel, found := strings.CutPrefix(path, root); found {
		return strings.TrimPrefix(rel, "/")
	}
	return path
}

// rankTags converts frequency counts into entries sorted by frequency
// descending, then lexicographically.
func rankTags(counts map[string]int) []models.TagEntry {
	now := time.Now()
	entries := make([]models.TagEntry, 0, len(counts))
	for tag, freq := range counts {
		entries = append(entries, models.TagEntry{Tag: tag, Frequency: freq, LastSeen: now})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Frequency != entries[j].Frequency {
			return entries[i].Frequency > entries[j].Frequency
		}
		return entries[i].Tag < entries[j].Tag
	})
	return entries
}
