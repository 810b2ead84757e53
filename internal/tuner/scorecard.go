package tuner

import "time"

// Sub-score weights. They sum to 1.0.
const (
	weightLatency = 0.30
	weightHitRate = 0.25
	weightMemory  = 0.20
	weightQueue   = 0.15
	weightErrors  = 0.10
)

// metrics is one raw reading of the observed system.
type metrics struct {
	latency    time.Duration
	hitRate    float64
	memoryUtil float64 // fraction of cache budget in use
	queueDepth int
	errorRate  float64
}

// Sample is one scored history entry.
type Sample struct {
	Time       time.Time          `json:"time"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
	Params     map[string]float64 `json:"params"`
}

// scorecard normalizes raw metrics into [0,1] sub-scores and the
// weighted total.
func (t *Tuner) scorecard(m metrics) (float64, map[string]float64) {
	components := map[string]float64{
		MetricLatency:    scoreLatency(m.latency, t.maxLatency),
		MetricHitRate:    clamp01(m.hitRate),
		MetricMemory:     scoreMemory(m.memoryUtil, t.optimalMemory),
		MetricQueueDepth: scoreQueue(m.queueDepth, t.maxQueueDepth),
		MetricErrorRate:  clamp01(1 - m.errorRate),
	}

	total := weightLatency*components[MetricLatency] +
		weightHitRate*components[MetricHitRate] +
		weightMemory*components[MetricMemory] +
		weightQueue*components[MetricQueueDepth] +
		weightErrors*components[MetricErrorRate]
	return total, components
}

// scoreLatency: lower is better, capped at the max acceptable value.
func scoreLatency(latency, maxAcceptable time.Duration) float64 {
	if maxAcceptable <= 0 {
		return 1
	}
	return clamp01(1 - float64(latency)/float64(maxAcceptable))
}

// scoreMemory rewards distance from the optimal utilization target,
// not simply "lower is better": an underfull cache wastes its budget
// just as an overfull one thrashes.
func scoreMemory(util, optimal float64) float64 {
	if optimal <= 0 {
		return 1
	}
	return clamp01(1 - abs(util-optimal)/optimal)
}

// scoreQueue: fewer queued jobs is better.
func scoreQueue(depth, maxDepth int) float64 {
	if maxDepth <= 0 {
		return 1
	}
	return clamp01(1 - float64(depth)/float64(maxDepth))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
