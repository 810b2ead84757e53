package guard

import (
	"runtime"
	"runtime/debug"
)

// MemoryLevel classifies current heap pressure.
type MemoryLevel int

const (
	// MemoryOK means the heap is under the threshold.
	MemoryOK MemoryLevel = iota
	// MemoryWarning means the heap exceeded the threshold but a forced
	// collection brought it back under.
	MemoryWarning
	// MemoryCritical means the heap stayed over the threshold even after
	// a forced collection; callers should skip or shrink work.
	MemoryCritical
)

// String returns the string representation of the memory level.
func (l MemoryLevel) String() string {
	switch l {
	case MemoryOK:
		return "ok"
	case MemoryWarning:
		return "warning"
	case MemoryCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MemoryStatus is the result of a pressure check.
type MemoryStatus struct {
	Level     MemoryLevel
	HeapBytes uint64
	Threshold uint64
}

// Guard bundles the memory check with the extraction circuit breaker.
type Guard struct {
	Breaker *Breaker

	heapThreshold uint64
}

// New creates a Guard. heapThreshold of 0 defaults to 256 MiB.
func New(breaker BreakerConfig, heapThreshold uint64) *Guard {
	if heapThreshold == 0 {
		heapThreshold = 256 << 20
	}
	return &Guard{
		Breaker:       NewBreaker(breaker),
		heapThreshold: heapThreshold,
	}
}

// CheckMemory samples the heap; when over threshold it forces a
// collection pass and re-samples before reporting critical.
func (g *Guard) CheckMemory() MemoryStatus {
	heap := heapInUse()
	if heap <= g.heapThreshold {
		return MemoryStatus{Level: MemoryOK, HeapBytes: heap, Threshold: g.heapThreshold}
	}

	runtime.GC()
	debug.FreeOSMemory()

	heap = heapInUse()
	if heap <= g.heapThreshold {
		return MemoryStatus{Level: MemoryWarning, HeapBytes: heap, Threshold: g.heapThreshold}
	}
	return MemoryStatus{Level: MemoryCritical, HeapBytes: heap, Threshold: g.heapThreshold}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}
