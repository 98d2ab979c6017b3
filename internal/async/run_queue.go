package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/agent"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

type RunQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  func(Report)
	base    context.Context

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	amu     sync.Mutex
	active  map[string]bool
	pending map[string]Job
}

type Option func(*RunQueue)

func WithWorkers(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(q *RunQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithBaseContext parents every run context on ctx. Once ctx is done the
// in-flight runs see the cancellation and queued jobs are reported as
// cancelled without running.
func WithBaseContext(ctx context.Context) Option {
	return func(q *RunQueue) {
		if ctx != nil {
			q.base = ctx
		}
	}
}

// WithReport registers a callback invoked from the worker goroutine after
// each job.
func WithReport(fn func(Report)) Option {
	return func(q *RunQueue) { q.onDone = fn }
}

// NewRunQueue starts the workers. Jobs of the same source never run
// concurrently: they share the program store and debug artifacts. A job
// for a source that is already running is held and run once the current
// run ends; further jobs for it while one is held replace the held one.
func NewRunQueue(runner Runner, logger *slog.Logger, opts ...Option) *RunQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RunQueue{
		runner:  runner,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		base:    context.Background(),
		ch:      make(chan Job, 64),
		active:  map[string]bool{},
		pending: map[string]Job{},
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *RunQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *RunQueue) process(workerID int, job Job) {
	if !q.claim(job) {
		q.logger.Info("queue.job.coalesced", "worker_id", workerID, "source", job.Target.Source, "trace_id", job.TraceID)
		return
	}
	for {
		q.run(workerID, job)
		next, ok := q.release(job.Target.Source)
		if !ok {
			return
		}
		job = next
	}
}

func (q *RunQueue) run(workerID int, job Job) {
	src := job.Target.Source
	start := time.Now()

	var rep Report
	if err := q.base.Err(); err != nil {
		q.logger.Info("queue.job.cancelled", "worker_id", workerID, "source", src, "trace_id", job.TraceID)
		rep = Report{Job: job, Outcome: &agent.Outcome{Source: src, State: constants.StateFailed}, Err: err}
	} else {
		ctx, cancel := context.WithTimeout(q.base, q.timeout)
		out, err := q.runner.Run(ctx, job.Target)
		cancel()

		rep = Report{Job: job, Outcome: out, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			q.logger.Warn("queue.job.failed", "worker_id", workerID, "source", src, "trace_id", job.TraceID, "error", err)
		} else {
			q.logger.Info("queue.job.ok", "worker_id", workerID, "source", src, "trace_id", job.TraceID,
				"elapsed_ms", rep.Elapsed.Milliseconds())
		}
	}
	if q.onDone != nil {
		q.onDone(rep)
	}
}

// claim marks the job's source active, or holds the job when the source
// is already running.
func (q *RunQueue) claim(job Job) bool {
	q.amu.Lock()
	defer q.amu.Unlock()
	src := job.Target.Source
	if q.active[src] {
		if prev, ok := q.pending[src]; ok {
			q.logger.Debug("queue.job.replaced", "source", src, "trace_id", prev.TraceID)
		}
		q.pending[src] = job
		return false
	}
	q.active[src] = true
	return true
}

// release hands back the held job for source, keeping the source active,
// or marks it idle when nothing is held.
func (q *RunQueue) release(source string) (Job, bool) {
	q.amu.Lock()
	defer q.amu.Unlock()
	if next, ok := q.pending[source]; ok {
		delete(q.pending, source)
		return next, true
	}
	delete(q.active, source)
	return Job{}, false
}

func (q *RunQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "source", job.Target.Source)
		return ErrClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue.ok", "source", job.Target.Source, "trace_id", job.TraceID)
		return nil
	default:
	}
	q.logger.Warn("queue.enqueue.backpressure", "source", job.Target.Source)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx
// to end. Cancel the base context first to skip the queued jobs.
func (q *RunQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
