package api

import (
	"context"
	"time"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/complete"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/jobs"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/tuner"
)

// Service coordinates the completion engine, extractor, cache, queue,
// and index for the API layer.
type Service struct {
	engine    *complete.Engine
	extractor *extract.Extractor
	db        *index.DB
	store     *cache.Cache
	queue     *jobs.Queue
	guard     *guard.Guard
	tuner     *tuner.Tuner
	root      string
	started   time.Time
}

// NewService creates a new API service.
func NewService(engine *complete.Engine, ex *extract.Extractor, db *index.DB,
	store *cache.Cache, queue *jobs.Queue, g *guard.Guard, tun *tuner.Tuner, root string) *Service {
	return &Service{
		engine:    engine,
		extractor: ex,
		db:        db,
		store:     store,
		queue:     queue,
		guard:     g,
		tuner:     tun,
		root:      root,
		started:   time.Now(),
	}
}

// Completions returns completion items for a cursor position.
func (s *Service) Completions(ctx context.Context, line string, col int) (complete.Result, error) {
	return s.engine.Completions(ctx, line, col)
}

// Tags returns the ranked vault tag list.
func (s *Service) Tags(ctx context.Context) ([]models.TagEntry, error) {
	return s.extractor.Tags(ctx, s.root)
}

// Notes returns the note metadata list used for wikilink completion.
func (s *Service) Notes(ctx context.Context) ([]models.NoteMetadata, error) {
	return s.extractor.Notes(ctx, s.root)
}

// MarkdownLinks returns the ranked markdown link target list.
func (s *Service) MarkdownLinks(ctx context.Context) ([]models.LinkEntry, error) {
	return s.extractor.MarkdownLinks(ctx, s.root)
}

// Search delegates to the index full-text search.
func (s *Service) Search(query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Refresh drops cached extraction results and rebuilds them.
func (s *Service) Refresh(ctx context.Context) error {
	return s.engine.Refresh(ctx)
}

// StatsSnapshot aggregates counters from every subsystem.
type StatsSnapshot struct {
	Cache      cache.Stats    `json:"cache"`
	Queue      jobs.Stats     `json:"queue"`
	Extraction extract.Stats  `json:"extraction"`
	Completion complete.Stats `json:"completion"`
	Circuit    string         `json:"circuit"`
	Tuner      tuner.Report   `json:"tuner"`
	UptimeSecs int64          `json:"uptime_seconds"`
}

// Stats returns a point-in-time snapshot of all subsystem counters.
func (s *Service) Stats() StatsSnapshot {
	return StatsSnapshot{
		Cache:      s.store.Stats(),
		Queue:      s.queue.Stats(),
		Extraction: s.extractor.Stats(),
		Completion: s.engine.Stats(),
		Circuit:    s.guard.Breaker.State().String(),
		Tuner:      s.tuner.Report(),
		UptimeSecs: int64(time.Since(s.started).Seconds()),
	}
}

// HealthReport summarizes system health for the health endpoint.
type HealthReport struct {
	Status  string             `json:"status"`
	Circuit string             `json:"circuit"`
	Memory  string             `json:"memory"`
	Score   float64            `json:"score"`
	Checks  map[string]float64 `json:"checks,omitempty"`
}

// Health combines the tuner verdict with circuit and memory state.
func (s *Service) Health() HealthReport {
	rep := s.tuner.Report()
	mem := s.guard.CheckMemory()

	status := rep.Health
	if s.guard.Breaker.State() == guard.CircuitOpen || mem.Level == guard.MemoryCritical {
		status = tuner.HealthCritical
	}
	return HealthReport{
		Status:  status,
		Circuit: s.guard.Breaker.State().String(),
		Memory:  mem.Level.String(),
		Score:   rep.Score,
		Checks:  rep.Components,
	}
}

// BenchReport holds latency measurements from a benchmark run.
type BenchReport struct {
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total"`
	Avg        time.Duration `json:"avg"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
}

// benchLines exercises each completion context once per iteration.
var benchLines = []struct {
	line string
	col  int
}{
	{"status #pro", 11},
	{"see [[Pro", 9},
	{"read [link](doc", 15},
}

// Bench runs iterations of completion requests against the live engine
// and reports aggregate latency.
func (s *Service) Bench(ctx context.Context, iterations int) (BenchReport, error) {
	if iterations <= 0 {
		iterations = 10
	}
	rep := BenchReport{Iterations: iterations, Min: time.Duration(1<<62 - 1)}
	var runs int
	start := time.Now()
	for i := 0; i < iterations; i++ {
		for _, b := range benchLines {
			t0 := time.Now()
			if _, err := s.engine.Completions(ctx, b.line, b.col); err != nil {
				return rep, err
			}
			d := time.Since(t0)
			runs++
			if d < rep.Min {
				rep.Min = d
			}
			if d > rep.Max {
				rep.Max = d
			}
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
	}
	rep.Total = time.Since(start)
	if runs > 0 {
		rep.Avg = rep.Total / time.Duration(runs)
	} else {
		rep.Min = 0
	}
	return rep, nil
}
