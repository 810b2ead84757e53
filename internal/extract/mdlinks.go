package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/models"
)

// mdLinkPattern matches inline markdown link destinations: ](target).
const mdLinkPattern = `\]\([^)\s]+\)`

// MarkdownLinks returns the ranked markdown-link targets seen across the
// vault, consulting the cache first.
func (e *Extractor) MarkdownLinks(ctx context.Context, root string) ([]models.LinkEntry, error) {
	key := cache.Key("mdlinks", root, "")
	if v, ok := e.cache.Get(StoreMdlinks, key); ok {
		if entries, ok := v.([]models.LinkEntry); ok {
			return entries, nil
		}
	}

	var entries []models.LinkEntry
	err := e.guarded(ctx, "mdlinks", func(ctx context.Context) error {
		res, err := e.runner.Run(ctx, e.request(mdLinkPattern, root))
		if err != nil {
			return err
		}

		counts := make(map[string]int)
		for _, line := range res.Lines {
			_, match, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			target := strings.TrimSuffix(strings.TrimPrefix(match, "]("), ")")
			if normalized, ok := e.normalizeLinkTarget(target); ok {
				counts[normalized]++
			}
		}

		entries = rankLinks(counts)
		e.cache.Set(StoreMdlinks, key, entries, cache.WithTags(TagVault, StoreMdlinks))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func rankLinks(counts map[string]int) []models.LinkEntry {
	entries := make([]models.LinkEntry, 0, len(counts))
	for target, freq := range counts {
		entries = append(entries, models.LinkEntry{Target: target, Frequency: freq})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Frequency != entries[j].Frequency {
			return entries[i].Frequency > entries[j].Frequency
		}
		return entries[i].Target < entries[j].Target
	})
	return entries
}
