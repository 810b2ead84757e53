// Package jobs implements the background job queue: a bounded priority
// queue with a concurrency limiter, per-job timeouts, retry with
// backoff, and cancellation by id or tag.
package jobs

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// State is the lifecycle state of a job.
type State int

const (
	// StatePending means the job is queued and waiting for a slot.
	StatePending State = iota
	// StateRunning means the job's task is executing.
	StateRunning
	// StateCompleted means the task returned without error.
	StateCompleted
	// StateFailed means the task returned an error with no retries left.
	StateFailed
	// StateTimeout means the per-job timer expired before the task finished.
	StateTimeout
	// StateCancelled means the job was cancelled by id or tag.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimeout:
		return "timeout"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is the unit of work a job runs. It must honor ctx cancellation.
type Task func(ctx context.Context) (any, error)

// Options configures one job submission.
type Options struct {
	Timeout    time.Duration
	Priority   int
	Retries    int
	Tags       []string
	OnComplete func(value any)
	OnError    func(err error)
}

type job struct {
	id          string
	task        Task
	state       State
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	timeout     time.Duration
	retriesLeft int
	attempts    int
	priority    int
	seq         uint64
	tags        []string
	onComplete  func(any)
	onError     func(error)

	cancelRequested bool
	cancelRun       context.CancelFunc
}

// Config bounds the queue.
type Config struct {
	MaxConcurrent  int
	MaxQueued      int
	DefaultTimeout time.Duration
	RetryDelay     time.Duration
}

// Queue schedules background jobs.
type Queue struct {
	mu      sync.Mutex
	pending pendingHeap
	byID    map[string]*job
	running int

	maxConcurrent  int
	maxQueued      int
	defaultTimeout time.Duration
	retryDelay     time.Duration

	nextID  uint64
	nextSeq uint64

	completed int64
	failed    int64
	timedOut  int64
	cancelled int64

	wake   chan struct{}
	ctx    context.Context
	logger *slog.Logger
}

// NewQueue creates a Queue, applying defaults for zero config values.
// Start must be called before jobs execute.
func NewQueue(cfg Config, logger *slog.Logger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = 64
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		byID:           make(map[string]*job),
		maxConcurrent:  cfg.MaxConcurrent,
		maxQueued:      cfg.MaxQueued,
		defaultTimeout: cfg.DefaultTimeout,
		retryDelay:     cfg.RetryDelay,
		wake:           make(chan struct{}, 1),
		logger:         logger,
	}
}

// Start runs the dispatcher until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.ctx = ctx
	q.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			q.drainOnShutdown()
			return
		case <-q.wake:
			q.dispatch(ctx)
		}
	}
}

// Run submits a task. It returns the job id, or apperr.ErrQueueFull when
// the queue is at capacity and no strictly-lower-priority pending job
// can be evicted to make room.
func (q *Queue) Run(task Task, opts Options) (string, error) {
	if task == nil {
		return "", fmt.Errorf("jobs: nil task: %w", apperr.ErrValidation)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = q.defaultTimeout
	}

	q.mu.Lock()
	if q.pending.Len() >= q.maxQueued {
		victim := q.lowestPriorityLocked()
		if victim == nil || victim.priority >= opts.Priority {
			q.mu.Unlock()
			if opts.OnError != nil {
				opts.OnError(apperr.ErrQueueFull)
			}
			return "", apperr.ErrQueueFull
		}
		q.finishLocked(victim, StateCancelled, nil, apperr.ErrQueueFull)
	}

	q.nextID++
	q.nextSeq++
	j := &job{
		id:          fmt.Sprintf("job-%d", q.nextID),
		task:        task,
		state:       StatePending,
		createdAt:   time.Now(),
		timeout:     timeout,
		retriesLeft: opts.Retries,
		priority:    opts.Priority,
		seq:         q.nextSeq,
		tags:        opts.Tags,
		onComplete:  opts.OnComplete,
		onError:     opts.OnError,
	}
	heap.Push(&q.pending, j)
	q.byID[j.id] = j
	q.mu.Unlock()

	q.signal()
	return j.id, nil
}

// Cancel cancels one job by id. Pending jobs are removed from the queue
// outright; running jobs have their context cancelled and their result
// discarded. The job's error callback fires with apperr.ErrCancelled.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	j, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	cancelled := q.cancelLocked(j)
	q.mu.Unlock()
	return cancelled
}

// CancelAll cancels every pending and running job carrying the given
// tag, or every job when tag is empty. Returns the number cancelled.
func (q *Queue) CancelAll(tag string) int {
	q.mu.Lock()
	var targets []*job
	for _, j := range q.byID {
		if tag == "" || hasTag(j, tag) {
			targets = append(targets, j)
		}
	}
	count := 0
	for _, j := range targets {
		if q.cancelLocked(j) {
			count++
		}
	}
	q.mu.Unlock()
	return count
}

// SetMaxConcurrent adjusts the concurrency limit. Tuner hook.
func (q *Queue) SetMaxConcurrent(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.maxConcurrent = n
	q.mu.Unlock()
	q.signal()
}

// MaxConcurrent returns the current concurrency limit.
func (q *Queue) MaxConcurrent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxConcurrent
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending       int   `json:"pending"`
	Running       int   `json:"running"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	TimedOut      int64 `json:"timed_out"`
	Cancelled     int64 `json:"cancelled"`
	MaxConcurrent int   `json:"max_concurrent"`
	MaxQueued     int   `json:"max_queued"`
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := 0
	for _, j := range q.byID {
		if j.state == StatePending {
			pending++
		}
	}
	return Stats{
		Pending:       pending,
		Running:       q.running,
		Completed:     q.completed,
		Failed:        q.failed,
		TimedOut:      q.timedOut,
		Cancelled:     q.cancelled,
		MaxConcurrent: q.maxConcurrent,
		MaxQueued:     q.maxQueued,
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch drains the pending heap while concurrency slots are free.
func (q *Queue) dispatch(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.running >= q.maxConcurrent {
			q.mu.Unlock()
			return
		}
		var j *job
		for q.pending.Len() > 0 {
			cand := heap.Pop(&q.pending).(*job)
			// Lazy deletion: skip entries cancelled while queued.
			if cand.state == StatePending {
				j = cand
				break
			}
		}
		if j == nil {
			q.mu.Unlock()
			return
		}
		j.state = StateRunning
		j.startedAt = time.Now()
		j.attempts++
		q.running++
		runCtx, cancel := context.WithTimeout(ctx, j.timeout)
		j.cancelRun = cancel
		q.mu.Unlock()

		go q.execute(runCtx, cancel, j)
	}
}

func (q *Queue) execute(ctx context.Context, cancel context.CancelFunc, j *job) {
	defer cancel()

	value, err := j.task(ctx)

	q.mu.Lock()
	q.running--
	j.cancelRun = nil

	switch {
	case j.cancelRequested:
		q.finishLocked(j, StateCancelled, nil, apperr.ErrCancelled)
	case err == nil:
		q.finishLocked(j, StateCompleted, value, nil)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		q.finishLocked(j, StateTimeout, nil, fmt.Errorf("jobs: %s: %w", j.id, apperr.ErrTimeout))
	case j.retriesLeft > 0:
		j.retriesLeft--
		q.retryLocked(j)
	default:
		q.finishLocked(j, StateFailed, nil, err)
	}
	q.mu.Unlock()

	q.signal()
}

// retryLocked schedules the job back to pending after an exponential
// backoff delay.
func (q *Queue) retryLocked(j *job) {
	delay := q.retryDelay << uint(j.attempts-1)
	j.state = StatePending
	q.logger.Debug("jobs: retry scheduled",
		slog.String("id", j.id),
		slog.Duration("delay", delay),
		slog.Int("retries_left", j.retriesLeft))

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		if j.state == StatePending && !j.cancelRequested {
			q.nextSeq++
			j.seq = q.nextSeq
			heap.Push(&q.pending, j)
		}
		q.mu.Unlock()
		q.signal()
	})
}

// finishLocked moves a job to a terminal state, updates counters, and
// fires the matching callback.
func (q *Queue) finishLocked(j *job, state State, value any, err error) {
	j.state = state
	j.completedAt = time.Now()
	delete(q.byID, j.id)

	switch state {
	case StateCompleted:
		q.completed++
	case StateFailed:
		q.failed++
	case StateTimeout:
		q.timedOut++
	case StateCancelled:
		q.cancelled++
	}

	// Callbacks run outside the job table but inside the lock would risk
	// deadlock if they resubmit; fire them on a fresh goroutine.
	if state == StateCompleted {
		if cb := j.onComplete; cb != nil {
			go cb(value)
		}
		return
	}
	if cb := j.onError; cb != nil {
		go cb(err)
	}
}

func (q *Queue) cancelLocked(j *job) bool {
	switch j.state {
	case StatePending:
		j.cancelRequested = true
		q.finishLocked(j, StateCancelled, nil, apperr.ErrCancelled)
		return true
	case StateRunning:
		j.cancelRequested = true
		if j.cancelRun != nil {
			j.cancelRun()
		}
		// Terminal transition happens in execute once the task returns.
		return true
	default:
		return false
	}
}

func (q *Queue) lowestPriorityLocked() *job {
	var victim *job
	for _, j := range q.byID {
		if j.state != StatePending {
			continue
		}
		if victim == nil || j.priority < victim.priority ||
			(j.priority == victim.priority && j.seq > victim.seq) {
			victim = j
		}
	}
	return victim
}

func (q *Queue) drainOnShutdown() {
	q.mu.Lock()
	var targets []*job
	for _, j := range q.byID {
		targets = append(targets, j)
	}
	for _, j := range targets {
		q.cancelLocked(j)
	}
	q.mu.Unlock()
}

func hasTag(j *job, tag string) bool {
	for _, t := range j.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// pendingHeap orders jobs by priority (higher first) with stable
// insertion-order tie-breaks.
type pendingHeap []*job

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
