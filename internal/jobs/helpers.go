package jobs

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result pairs one task's value with its error.
type Result struct {
	Value any
	Err   error
}

// Parallel runs all tasks concurrently, bounded by limit (0 means no
// bound), and returns results indexed by task position. Every task is
// accounted for: the slice always has len(tasks) entries.
func Parallel(ctx context.Context, tasks []Task, limit int) []Result {
	results := make([]Result, len(tasks))
	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, task := range tasks {
		g.Go(func() error {
			v, err := task(gCtx)
			results[i] = Result{Value: v, Err: err}
			// Task errors are captured per-slot, not propagated; a failing
			// task must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Sequence runs tasks strictly in order. When stopOnError is set the
// first failure stops the run; remaining slots keep zero values.
func Sequence(ctx context.Context, tasks []Task, stopOnError bool) []Result {
	results := make([]Result, len(tasks))
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Err: err}
			if stopOnError {
				return results
			}
			continue
		}
		v, err := task(ctx)
		results[i] = Result{Value: v, Err: err}
		if err != nil && stopOnError {
			return results
		}
	}
	return results
}

// Debounce returns a wrapper that delays fn until wait has elapsed with
// no further calls.
func Debounce(fn func(), wait time.Duration) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(wait, fn)
	}
}

// Throttle returns a wrapper that invokes fn at most once per limit,
// leading edge.
func Throttle(fn func(), limit time.Duration) func() {
	var mu sync.Mutex
	var last time.Time
	return func() {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(last) < limit {
			return
		}
		last = now
		fn()
	}
}
