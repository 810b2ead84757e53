package complete

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/jobs"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/score"
)

// Item kinds reported to clients.
const (
	ItemKindTag  = "tag"
	ItemKindNote = "note"
	ItemKindLink = "link"
)

// Item is one sanitized completion candidate.
type Item struct {
	Label         string  `json:"label"`
	Kind          string  `json:"kind"`
	Detail        string  `json:"detail,omitempty"`
	Documentation string  `json:"documentation,omitempty"`
	InsertText    string  `json:"insert_text"`
	FilterText    string  `json:"filter_text,omitempty"`
	SortText      string  `json:"sort_text,omitempty"`
	Score         float64 `json:"score"`
}

// Result is a bounded, ranked completion response. IsIncomplete is set
// when the item cap truncated real candidates.
type Result struct {
	Items        []Item `json:"items"`
	IsIncomplete bool   `json:"is_incomplete"`
	Context      string `json:"context"`
	Query        string `json:"query"`
}

// Engine is the completion facade.
type Engine struct {
	extractor *extract.Extractor
	scorer    *score.Scorer
	root      string
	maxItems  int
	logger    *slog.Logger

	mu           sync.Mutex
	requests     int64
	lastLatency  time.Duration
	totalLatency time.Duration
}

// NewEngine creates the facade for the vault rooted at root.
func NewEngine(ex *extract.Extractor, sc *score.Scorer, root string, maxItems int, logger *slog.Logger) *Engine {
	if maxItems <= 0 {
		maxItems = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		extractor: ex,
		scorer:    sc,
		root:      root,
		maxItems:  maxItems,
		logger:    logger,
	}
}

// Completions returns the ranked items for the cursor position. When no
// completion context matches it returns an empty complete result and
// never guesses.
func (e *Engine) Completions(ctx context.Context, line string, col int) (Result, error) {
	cc := DetectContext(line, col)
	if cc.Kind == KindNone {
		return Result{Context: cc.Kind.String()}, nil
	}

	start := time.Now()
	res, err := e.dispatch(ctx, cc)
	e.observe(time.Since(start))

	res.Context = cc.Kind.String()
	res.Query = cc.Query
	if err != nil {
		// Degrade to an empty-but-valid result; the reason is logged, not
		// surfaced as a hard failure to the editor.
		e.logger.Debug("complete: degraded",
			slog.String("context", cc.Kind.String()),
			slog.String("error", err.Error()))
		return res, fmt.Errorf("complete: %s: %w", cc.Kind, err)
	}
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, cc Context) (Result, error) {
	switch cc.Kind {
	case KindTag:
		return e.tagItems(ctx, cc.Query)
	case KindWikiLink:
		return e.wikiItems(ctx, cc.Query)
	case KindMarkdownLink:
		return e.mdlinkItems(ctx, cc.Query)
	default:
		return Result{}, nil
	}
}

func (e *Engine) tagItems(ctx context.Context, query string) (Result, error) {
	entries, err := e.extractor.Tags(ctx, e.root)
	if err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		s := e.scorer.Score(query, entry.Tag, entry.Frequency)
		if s <= 0 {
			continue
		}
		items = append(items, sanitize(Item{
			Label:      "#" + entry.Tag,
			Kind:       ItemKindTag,
			Detail:     fmt.Sprintf("%d occurrences", entry.Frequency),
			InsertText: entry.Tag,
			FilterText: entry.Tag,
			Score:      s,
		}))
	}
	return e.bound(items), nil
}

func (e *Engine) wikiItems(ctx context.Context, query string) (Result, error) {
	notes, err := e.extractor.Notes(ctx, e.root)
	if err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(notes))
	for _, note := range notes {
		target := extract.LinkTarget(note)
		freq := 1 + note.Backlinks

		best := e.scorer.Score(query, target, freq)
		if s := e.scorer.Score(query, note.Title, freq); s > best {
			best = s
		}
		for _, alias := range note.Aliases {
			if s := e.scorer.Score(query, alias, freq); s > best {
				best = s
			}
		}
		if best <= 0 {
			continue
		}

		items = append(items, sanitize(Item{
			Label:         target,
			Kind:          ItemKindNote,
			Detail:        note.Title,
			Documentation: noteDocumentation(note),
			InsertText:    target,
			FilterText:    target,
			Score:         best,
		}))
	}
	return e.bound(items), nil
}

func (e *Engine) mdlinkItems(ctx context.Context, query string) (Result, error) {
	entries, err := e.extractor.MarkdownLinks(ctx, e.root)
	if err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		s := e.scorer.Score(query, entry.Target, entry.Frequency)
		if s <= 0 {
			continue
		}
		items = append(items, sanitize(Item{
			Label:      entry.Target,
			Kind:       ItemKindLink,
			Detail:     fmt.Sprintf("%d references", entry.Frequency),
			InsertText: entry.Target,
			FilterText: entry.Target,
			Score:      s,
		}))
	}
	return e.bound(items), nil
}

// bound sorts by score descending (label ascending for ties), applies
// the item cap, and assigns sort text preserving the final order.
func (e *Engine) bound(items []Item) Result {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Label < items[j].Label
	})

	incomplete := false
	if len(items) > e.maxItems {
		items = items[:e.maxItems]
		incomplete = true
	}
	for i := range items {
		items[i].SortText = fmt.Sprintf("%04d", i)
	}
	return Result{Items: items, IsIncomplete: incomplete}
}

// Refresh invalidates cached extraction results and warms all three
// kinds for the vault in parallel. The first error in kind order is
// returned; the other passes still complete.
func (e *Engine) Refresh(ctx context.Context) error {
	e.extractor.Invalidate()

	results := jobs.Parallel(ctx, []jobs.Task{
		func(ctx context.Context) (any, error) { return e.extractor.Tags(ctx, e.root) },
		func(ctx context.Context) (any, error) { return e.extractor.Notes(ctx, e.root) },
		func(ctx context.Context) (any, error) { return e.extractor.MarkdownLinks(ctx, e.root) },
	}, 0)
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Stats is the facade latency snapshot consumed by the tuner and the
// status surfaces.
type Stats struct {
	Requests    int64         `json:"requests"`
	LastLatency time.Duration `json:"last_latency"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// Stats returns request counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{Requests: e.requests, LastLatency: e.lastLatency}
	if e.requests > 0 {
		s.AvgLatency = e.totalLatency / time.Duration(e.requests)
	}
	return s
}

func (e *Engine) observe(d time.Duration) {
	e.mu.Lock()
	e.requests++
	e.lastLatency = d
	e.totalLatency += d
	e.mu.Unlock()
}

// noteDocumentation builds the hover payload for a note candidate.
func noteDocumentation(note models.NoteMetadata) string {
	doc := note.RelativePath
	if note.Title != "" {
		doc = note.Title + "\n" + doc
	}
	if len(note.Aliases) > 0 {
		doc += "\naliases: " + strings.Join(note.Aliases, ", ")
	}
	return doc
}
