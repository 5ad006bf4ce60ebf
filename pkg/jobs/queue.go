package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when a job cannot be buffered without blocking.
var ErrQueueFull = errors.New("queue full")

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

// Job is a unit of deferred work. Payload is owned by the handler.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A non-nil error schedules another attempt.
type Handler func(context.Context, Job) error

// QueueConfig sizes the worker pool and its retry policy.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats is a point-in-time view of queue counters.
type Stats struct {
	Pending   int   `json:"pending"`
	Processed int64 `json:"processed"`
	Retried   int64 `json:"retried"`
	Dropped   int64 `json:"dropped"`
}

// Queue runs best-effort side effects off the request path. Failed jobs are
// retried in place with a doubling delay; after MaxRetries they are dropped.
type Queue struct {
	name   string
	handle Handler
	cfg    QueueConfig
	log    *zap.Logger

	jobs chan Job

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

// NewQueue builds a stopped queue. Call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:   name,
		handle: handler,
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("queue", name)),
		jobs:   make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Repeated calls are no-ops.
func (q *Queue) Start(parent context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(parent)
	q.wg.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go q.run()
	}
	q.running = true
	q.log.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.BufferSize))
}

// Stop refuses new jobs, waits up to grace for the buffer to drain, then
// cancels the workers and waits for them to return.
func (q *Queue) Stop(grace time.Duration) {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	deadline := time.Now().Add(grace)
	for len(q.jobs) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	q.cancel()
	q.wg.Wait()

	left := len(q.jobs)
	q.dropped.Add(int64(left))
	q.log.Info("queue stopped", zap.Int("abandoned", left), zap.Int64("processed", q.processed.Load()))
}

// Enqueue buffers a job without blocking the caller.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("queue %s: %w", q.name, ErrNotRunning)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// Pending reports the number of buffered jobs.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Stats snapshots the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Processed: q.processed.Load(),
		Retried:   q.retried.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.process(job)
		}
	}
}

// process runs a job until it succeeds, runs out of attempts, or the queue
// is cancelled while waiting to retry.
func (q *Queue) process(job Job) {
	delay := q.cfg.RetryDelay
	for {
		err := q.handle(q.ctx, job)
		if err == nil {
			q.processed.Add(1)
			return
		}
		if job.Attempt >= q.cfg.MaxRetries {
			q.dropped.Add(1)
			q.log.Error("job dropped after retries",
				zap.String("job_id", job.ID), zap.String("type", job.Type),
				zap.Int("attempts", job.Attempt+1), zap.Error(err))
			return
		}
		job.Attempt++
		q.retried.Add(1)
		q.log.Warn("job failed, retrying",
			zap.String("job_id", job.ID), zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt), zap.Duration("backoff", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.dropped.Add(1)
			return
		case <-timer.C:
		}
		delay *= 2
	}
}
