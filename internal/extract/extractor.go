// Package extract orchestrates tag, wikilink, and markdown-link
// extraction over a note vault: ripgrep passes (or the fallback walk)
// behind the completion cache, gated by the circuit breaker and memory
// guard, with every resource limit enforced as graceful truncation.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/runner"
	"github.com/starford/ansuz/internal/vault"
)

// Cache store names, also used as invalidation tags.
const (
	StoreTags      = "tags"
	StoreWikilinks = "wikilinks"
	StoreMdlinks   = "mdlinks"

	// TagVault marks every extraction entry for whole-vault invalidation.
	TagVault = "vault"
)

// Trim target when memory pressure is critical.
const pressureTrimEntries = 100

// Config holds extraction limits.
type Config struct {
	Timeout     time.Duration
	BatchSize   int
	NestedTags  bool
	MaxTagLen   int
	MaxTagDepth int
	Includes    []string // include globs for the search tool, e.g. "*.md"
	Excludes    []string
}

// Backlinks supplies reference counts per note path; injected so wikilink
// ranking can boost frequently-referenced notes without this package
// depending on the index.
type Backlinks func(ctx context.Context) map[string]int

// Extractor produces ranked, deduplicated completion entries.
type Extractor struct {
	runner *runner.Runner
	cache  *cache.Cache
	guard  *guard.Guard
	vault  vault.Provider
	logger *slog.Logger

	timeout      time.Duration
	nestedTags   bool
	maxTagLength int
	maxTagDepth  int
	includes     []string
	excludes     []string

	backlinks Backlinks

	mu           sync.Mutex
	batchSize    int
	extractions  int64
	failures     int64
	timeouts     int64
	lastLatency  time.Duration
	totalLatency time.Duration
}

// New creates an Extractor, applying defaults for zero config values.
func New(r *runner.Runner, c *cache.Cache, g *guard.Guard, v vault.Provider, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxTagLen <= 0 {
		cfg.MaxTagLen = 100
	}
	if cfg.MaxTagDepth <= 0 {
		cfg.MaxTagDepth = 5
	}
	if len(cfg.Includes) == 0 {
		cfg.Includes = []string{"*.md"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		runner:       r,
		cache:        c,
		guard:        g,
		vault:        v,
		logger:       logger,
		timeout:      cfg.Timeout,
		nestedTags:   cfg.NestedTags,
		maxTagLength: cfg.MaxTagLen,
		maxTagDepth:  cfg.MaxTagDepth,
		includes:     cfg.Includes,
		excludes:     cfg.Excludes,
		batchSize:    cfg.BatchSize,
	}
}

// SetBacklinks injects the backlink count source.
func (e *Extractor) SetBacklinks(b Backlinks) { e.backlinks = b }

// SetBatchSize adjusts the per-pass file batch size. Tuner hook.
func (e *Extractor) SetBatchSize(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	e.batchSize = n
	e.mu.Unlock()
}

// BatchSize returns the current batch size.
func (e *Extractor) BatchSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchSize
}

// Invalidate drops every cached extraction result.
func (e *Extractor) Invalidate() int {
	return e.cache.InvalidateByTags("", []string{TagVault})
}

// Stats is the extraction health snapshot consumed by the tuner.
type Stats struct {
	Extractions int64         `json:"extractions"`
	Failures    int64         `json:"failures"`
	Timeouts    int64         `json:"timeouts"`
	LastLatency time.Duration `json:"last_latency"`
	AvgLatency  time.Duration `json:"avg_latency"`
	ErrorRate   float64       `json:"error_rate"`
	BatchSize   int           `json:"batch_size"`
}

// Stats returns extraction counters.
func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Extractions: e.extractions,
		Failures:    e.failures,
		Timeouts:    e.timeouts,
		LastLatency: e.lastLatency,
		BatchSize:   e.batchSize,
	}
	if e.extractions > 0 {
		s.AvgLatency = e.totalLatency / time.Duration(e.extractions)
		s.ErrorRate = float64(e.failures+e.timeouts) / float64(e.extractions)
	}
	return s
}

// guarded wraps one extraction pass with the circuit breaker, the memory
// check, the whole-extraction timeout, and latency accounting. On any
// limit breach the caller still receives whatever partial result fn
// produced.
func (e *Extractor) guarded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := e.guard.Breaker.Allow(); err != nil {
		return fmt.Errorf("extract: %s: %w", op, err)
	}

	if status := e.guard.CheckMemory(); status.Level == guard.MemoryCritical {
		trimmed := e.cache.TrimTo(pressureTrimEntries)
		e.logger.Warn("extract: memory critical, trimmed cache",
			slog.String("op", op),
			slog.Int("trimmed", trimmed),
			slog.Uint64("heap", status.HeapBytes))
		if e.guard.CheckMemory().Level == guard.MemoryCritical {
			return fmt.Errorf("extract: %s: %w", op, apperr.ErrResourceExhausted)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := fn(runCtx)
	latency := time.Since(start)

	e.mu.Lock()
	e.extractions++
	e.lastLatency = latency
	e.totalLatency += latency
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		e.timeouts++
	default:
		e.failures++
	}
	e.mu.Unlock()

	switch {
	case err == nil:
		e.guard.Breaker.Success()
		return nil
	case errors.Is(err, apperr.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		e.guard.Breaker.Failure(guard.WeightTimeout)
		return fmt.Errorf("extract: %s: %w", op, apperr.ErrTimeout)
	default:
		e.guard.Breaker.Failure(guard.WeightFailure)
		return fmt.Errorf("extract: %s: %w", op, err)
	}
}

// request builds the shared search request shape for this vault.
func (e *Extractor) request(pattern, root string) runner.Request {
	return runner.Request{
		Pattern:  pattern,
		Root:     root,
		Globs:    e.includes,
		Excludes: e.excludes,
	}
}
