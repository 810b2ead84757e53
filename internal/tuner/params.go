package tuner

// Parameter is one bounded, named control value with its tuning
// metadata. Parameters are mutated only by the tuner loop; owning
// subsystems receive new values through their apply hook.
type Parameter struct {
	Name         string  `json:"name"`
	Current      float64 `json:"current"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	TargetMetric string  `json:"target_metric"`
	TargetValue  float64 `json:"target_value"`
	Factor       float64 `json:"adjustment_factor"`

	apply     func(float64)
	prev      float64
	direction float64
}

// Metric names parameters can target.
const (
	MetricLatency    = "latency"
	MetricHitRate    = "hit_rate"
	MetricMemory     = "memory"
	MetricQueueDepth = "queue_depth"
	MetricErrorRate  = "error_rate"
)

func (p *Parameter) clamp(v float64) float64 {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// adjust moves the parameter one multiplicative step in its current
// direction, using the small stabilizing factor when the target metric
// is already met, and applies the result.
func (p *Parameter) adjust(targetMet bool, gradient float64) {
	if p.direction == 0 {
		p.direction = 1
	}
	// A falling score means the last move hurt; reverse course.
	if gradient < 0 {
		p.direction = -p.direction
	}

	factor := p.Factor
	if targetMet {
		factor = p.Factor / 4
	}

	p.prev = p.Current
	p.Current = p.clamp(p.Current * (1 + p.direction*factor))
	if p.apply != nil {
		p.apply(p.Current)
	}
}

// rollback reverts the parameter to its pre-adjustment value.
func (p *Parameter) rollback() {
	if p.prev == 0 {
		return
	}
	p.Current = p.prev
	if p.apply != nil {
		p.apply(p.Current)
	}
}
