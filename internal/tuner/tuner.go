// Package tuner implements the adaptive control loop: it scores overall
// system performance from observed metrics and nudges cache TTL, queue
// concurrency, extraction batch size, and event debounce toward
// configured targets, rolling back adjustments that regress the score.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/complete"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/jobs"
)

// Health verdicts.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Verdict thresholds and stagnation window.
const (
	criticalScore    = 0.40
	warningScore     = 0.65
	stagnationWindow = 10
	stagnationEps    = 0.01
	gradientWindow   = 5
)

// Sources are the subsystems the tuner observes and steers.
type Sources struct {
	Cache     *cache.Cache
	Queue     *jobs.Queue
	Extractor *extract.Extractor
	Engine    *complete.Engine

	// ApplyDebounce receives the tuned event-debounce delay; optional.
	ApplyDebounce func(time.Duration)

	// OnAdjust is called after a parameter's value changes; optional.
	OnAdjust func(name string, value float64)
}

// Config holds tuner settings.
type Config struct {
	Interval          time.Duration
	LearningRate      float64
	RollbackThreshold float64

	MaxLatency    time.Duration // latency scoring cap, default 200ms
	OptimalMemory float64       // target cache utilization, default 0.6
	MaxQueueDepth int           // queue scoring cap, default 32
	HistorySize   int           // score history ring, default 64
}

// Tuner is the periodic control loop.
type Tuner struct {
	sources Sources
	logger  *slog.Logger

	interval      time.Duration
	rollbackFrac  float64
	maxLatency    time.Duration
	optimalMemory float64
	maxQueueDepth int
	historySize   int

	mu      sync.Mutex
	params  []*Parameter
	history []Sample
}

// New creates a Tuner, applying defaults for zero config values.
func New(cfg Config, src Sources, logger *slog.Logger) *Tuner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.RollbackThreshold <= 0 {
		cfg.RollbackThreshold = 0.1
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = 200 * time.Millisecond
	}
	if cfg.OptimalMemory <= 0 {
		cfg.OptimalMemory = 0.6
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = 32
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tuner{
		sources:       src,
		logger:        logger,
		interval:      cfg.Interval,
		rollbackFrac:  cfg.RollbackThreshold,
		maxLatency:    cfg.MaxLatency,
		optimalMemory: cfg.OptimalMemory,
		maxQueueDepth: cfg.MaxQueueDepth,
		historySize:   cfg.HistorySize,
	}
	t.params = t.buildParams(cfg.LearningRate)
	return t
}

// buildParams wires one Parameter per tunable to its owning subsystem.
func (t *Tuner) buildParams(rate float64) []*Parameter {
	params := []*Parameter{
		{
			Name: "cache_ttl_seconds", Min: 60, Max: 3600,
			TargetMetric: MetricHitRate, TargetValue: 0.8, Factor: rate,
			apply: func(v float64) {
				t.sources.Cache.SetDefaultTTL(time.Duration(v) * time.Second)
			},
		},
		{
			Name: "cleanup_interval_seconds", Min: 15, Max: 600,
			TargetMetric: MetricMemory, TargetValue: t.optimalMemory, Factor: rate,
			apply: func(v float64) {
				t.sources.Cache.SetCleanupInterval(time.Duration(v) * time.Second)
			},
		},
		{
			Name: "max_concurrent_jobs", Min: 1, Max: 16,
			TargetMetric: MetricQueueDepth, TargetValue: 4, Factor: rate,
			apply: func(v float64) {
				t.sources.Queue.SetMaxConcurrent(int(v))
			},
		},
		{
			Name: "batch_size", Min: 10, Max: 200,
			TargetMetric: MetricLatency, TargetValue: float64(t.maxLatency / 2), Factor: rate,
			apply: func(v float64) {
				t.sources.Extractor.SetBatchSize(int(v))
			},
		},
		{
			Name: "debounce_ms", Min: 50, Max: 500,
			TargetMetric: MetricLatency, TargetValue: float64(t.maxLatency / 2), Factor: rate / 2,
			apply: func(v float64) {
				if t.sources.ApplyDebounce != nil {
					t.sources.ApplyDebounce(time.Duration(v) * time.Millisecond)
				}
			},
		},
	}

	// Seed current values from the live subsystems.
	params[0].Current = t.sources.Cache.DefaultTTL().Seconds()
	params[1].Current = 60
	params[2].Current = float64(t.sources.Queue.MaxConcurrent())
	params[3].Current = float64(t.sources.Extractor.BatchSize())
	params[4].Current = 200
	for _, p := range params {
		p.Current = p.clamp(p.Current)
		p.prev = p.Current
	}
	return params
}

// Start runs the control loop until ctx is cancelled.
func (t *Tuner) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Step()
		}
	}
}

// Step runs one tuning iteration: score, rollback check, adjust, record.
func (t *Tuner) Step() {
	m := t.observe()

	t.mu.Lock()
	defer t.mu.Unlock()

	score, components := t.scorecard(m)

	// Rollback guard: if the score regressed sharply versus the prior
	// sample, revert the last adjustments instead of making new ones.
	if n := len(t.history); n > 0 {
		prior := t.history[n-1].Score
		if prior > 0 && score < prior*(1-t.rollbackFrac) {
			for _, p := range t.params {
				p.rollback()
			}
			t.logger.Debug("tuner: rolled back",
				slog.Float64("score", score),
				slog.Float64("prior", prior))
			t.record(score, components)
			return
		}
	}

	gradient := t.gradientLocked()
	for _, p := range t.params {
		before := p.Current
		p.adjust(t.metricMet(p, m, components), gradient)
		if p.Current != before && t.sources.OnAdjust != nil {
			t.sources.OnAdjust(p.Name, p.Current)
		}
	}
	t.record(score, components)
}

// observe gathers raw metrics from the subsystems.
func (t *Tuner) observe() metrics {
	cacheStats := t.sources.Cache.Stats()
	queueStats := t.sources.Queue.Stats()
	extractStats := t.sources.Extractor.Stats()
	engineStats := t.sources.Engine.Stats()

	util := 0.0
	if cacheStats.MaxBytes > 0 {
		util = float64(cacheStats.Bytes) / float64(cacheStats.MaxBytes)
	}
	return metrics{
		latency:    engineStats.AvgLatency,
		hitRate:    cacheStats.HitRate,
		memoryUtil: util,
		queueDepth: queueStats.Pending,
		errorRate:  extractStats.ErrorRate,
	}
}

// metricMet reports whether a parameter's target metric already meets
// its target value.
func (t *Tuner) metricMet(p *Parameter, m metrics, components map[string]float64) bool {
	switch p.TargetMetric {
	case MetricHitRate:
		return m.hitRate >= p.TargetValue
	case MetricLatency:
		return float64(m.latency) <= p.TargetValue
	case MetricQueueDepth:
		return float64(m.queueDepth) <= p.TargetValue
	case MetricMemory:
		return components[MetricMemory] >= 0.8
	case MetricErrorRate:
		return m.errorRate <= p.TargetValue
	default:
		return true
	}
}

// gradientLocked returns the short-window slope of the score history.
func (t *Tuner) gradientLocked() float64 {
	n := len(t.history)
	if n < 2 {
		return 0
	}
	window := gradientWindow
	if window > n {
		window = n
	}
	recent := t.history[n-window:]
	return (recent[len(recent)-1].Score - recent[0].Score) / float64(len(recent))
}

func (t *Tuner) record(score float64, components map[string]float64) {
	params := make(map[string]float64, len(t.params))
	for _, p := range t.params {
		params[p.Name] = p.Current
	}
	t.history = append(t.history, Sample{
		Time:       time.Now(),
		Score:      score,
		Components: components,
		Params:     params,
	})
	if len(t.history) > t.historySize {
		t.history = t.history[len(t.history)-t.historySize:]
	}
}

// Report is the externally visible tuner state.
type Report struct {
	Health          string             `json:"health"`
	Score           float64            `json:"score"`
	Components      map[string]float64 `json:"components,omitempty"`
	Parameters      []Parameter        `json:"parameters"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// Report returns the current parameters, health verdict, and
// recommendations derived from low component scores.
func (t *Tuner) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	rep := Report{Health: HealthHealthy}
	params := make([]Parameter, len(t.params))
	for i, p := range t.params {
		params[i] = *p
	}
	rep.Parameters = params

	if len(t.history) == 0 {
		return rep
	}
	latest := t.history[len(t.history)-1]
	rep.Score = latest.Score
	rep.Components = latest.Components
	rep.Recommendations = recommendations(latest.Components)

	switch {
	case latest.Score < criticalScore:
		rep.Health = HealthCritical
	case latest.Score < warningScore:
		rep.Health = HealthWarning
	}

	if rep.Health == HealthHealthy && t.stagnantLocked() {
		rep.Health = HealthWarning
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("no measurable improvement over the last %d iterations", stagnationWindow))
	}
	return rep
}

// stagnantLocked reports no measurable score improvement across the
// stagnation window.
func (t *Tuner) stagnantLocked() bool {
	n := len(t.history)
	if n < stagnationWindow {
		return false
	}
	window := t.history[n-stagnationWindow:]
	best := window[0].Score
	for _, s := range window[1:] {
		if s.Score > best+stagnationEps {
			return false
		}
	}
	return true
}

func recommendations(components map[string]float64) []string {
	var out []string
	if components[MetricLatency] < 0.5 {
		out = append(out, "completion latency is high; consider lowering batch size or extraction limits")
	}
	if components[MetricHitRate] < 0.5 {
		out = append(out, "cache hit rate is low; consider raising cache TTL")
	}
	if components[MetricMemory] < 0.5 {
		out = append(out, "cache utilization is far from target; consider adjusting the memory budget")
	}
	if components[MetricQueueDepth] < 0.5 {
		out = append(out, "job queue is backing up; consider raising concurrency")
	}
	if components[MetricErrorRate] < 0.5 {
		out = append(out, "extraction error rate is high; check the search tool installation")
	}
	return out
}
