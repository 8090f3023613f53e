// Package jobqueue runs the inference work (transcribe, classify,
// generate, synthesize) on bounded worker pools with strict priority
// dispatch, per-call ordering, and retry with backoff.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/dc-engine/internal/metrics"
)

// Priority levels, dispatched strictly: urgent before normal before
// low.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Status is a job's lifecycle phase.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrQueueClosed settles jobs still waiting when the queue shuts down.
var ErrQueueClosed = errors.New("queue closed")

// Handler executes one job attempt.
type Handler func(ctx context.Context, job *Job) (any, error)

// Job is one unit of work and also the await handle for its result.
type Job struct {
	ID          string
	CallID      string
	Payload     any
	Priority    Priority
	Attempt     int
	MaxAttempts int

	done      chan struct{}
	result    any
	err       error
	status    Status
	settledAt time.Time
}

// Err returns the job's final error. Valid only after Await.
func (j *Job) Err() error { return j.err }

// Options tune a single enqueue.
type Options struct {
	Priority    Priority
	MaxAttempts int           // default: queue's default attempts
	Delay       time.Duration // defer first dispatch
}

// Config sets per-queue behavior.
type Config struct {
	Workers         int
	DefaultAttempts int
	BackoffBase     time.Duration // attempt n waits base * 2^n
	WarnDepth       int           // waiting depth that triggers a warning log
	ResultTTL       time.Duration // settled results older than this are swept
}

// Queue is one named worker pool. Within the same call id, jobs run in
// enqueue order: a later job never starts while an earlier one is
// waiting, active, or backing off.
type Queue struct {
	name    string
	handler Handler
	cfg     Config
	log     zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	cond     *sync.Cond
	waiting  [3][]*Job       // index = Priority
	inFlight map[string]*Job // call id → job holding the order gate
	dead     []*Job
	settled  []*Job
	closed   bool

	onCompleted []func(*Job)
	onFailed    []func(*Job)
}

func New(name string, cfg Config, handler Handler, log zerolog.Logger) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.DefaultAttempts < 1 {
		cfg.DefaultAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.WarnDepth <= 0 {
		cfg.WarnDepth = 100
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:     name,
		handler:  handler,
		cfg:      cfg,
		log:      log.With().Str("queue", name).Logger(),
		baseCtx:  ctx,
		cancel:   cancel,
		inFlight: make(map[string]*Job),
	}
	q.cond = sync.NewCond(&q.mu)

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.wg.Add(1)
	go q.janitor()
	return q
}

// janitor sweeps settled results and dead letters past the TTL. Job
// payloads hold full audio blobs, so results must not accumulate for
// the life of the process.
func (q *Queue) janitor() {
	defer q.wg.Done()
	t := time.NewTicker(q.cfg.ResultTTL)
	defer t.Stop()
	for {
		select {
		case <-q.baseCtx.Done():
			return
		case <-t.C:
			if n := q.Clean(q.cfg.ResultTTL, ""); n > 0 {
				q.log.Debug().Int("removed", n).Msg("settled jobs swept")
			}
		}
	}
}

// OnCompleted registers a callback invoked after a job settles
// successfully. Must be called before the first enqueue.
func (q *Queue) OnCompleted(fn func(*Job)) { q.onCompleted = append(q.onCompleted, fn) }

// OnFailed registers a callback invoked after a job exhausts its
// attempts. Must be called before the first enqueue.
func (q *Queue) OnFailed(fn func(*Job)) { q.onFailed = append(q.onFailed, fn) }

// Enqueue submits a job and returns its handle.
func (q *Queue) Enqueue(callID string, payload any, opts Options) (*Job, error) {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = q.cfg.DefaultAttempts
	}
	job := &Job{
		ID:          uuid.NewString(),
		CallID:      callID,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: attempts,
		done:        make(chan struct{}),
		status:      StatusWaiting,
	}

	if opts.Delay > 0 {
		time.AfterFunc(opts.Delay, func() { q.push(job, false) })
		return job, nil
	}
	if err := q.pushChecked(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) pushChecked(job *Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.enqueueLocked(job, false)
	q.mu.Unlock()
	return nil
}

// push is used by delayed dispatch and retries; a closed queue settles
// the job instead of dropping it silently.
func (q *Queue) push(job *Job, front bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.settle(job, nil, ErrQueueClosed)
		return
	}
	q.enqueueLocked(job, front)
	q.mu.Unlock()
}

func (q *Queue) enqueueLocked(job *Job, front bool) {
	job.status = StatusWaiting
	if front {
		q.waiting[job.Priority] = append([]*Job{job}, q.waiting[job.Priority]...)
	} else {
		q.waiting[job.Priority] = append(q.waiting[job.Priority], job)
	}

	depth := q.depthLocked()
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(depth))
	if depth > q.cfg.WarnDepth {
		q.log.Warn().Int("depth", depth).Msg("queue depth over threshold")
	}
	q.cond.Broadcast()
}

func (q *Queue) depthLocked() int {
	return len(q.waiting[PriorityUrgent]) + len(q.waiting[PriorityNormal]) + len(q.waiting[PriorityLow])
}

// Await blocks until the job settles or the context expires.
func (q *Queue) Await(ctx context.Context, job *Job) (any, error) {
	select {
	case <-job.done:
		return job.result, job.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth reports jobs currently waiting.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// SettledCount reports settled jobs still retained.
func (q *Queue) SettledCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.settled)
}

// DeadLetters returns jobs that exhausted their attempts.
func (q *Queue) DeadLetters() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}

// Clean drops settled jobs older than age with the given status
// (completed, failed, or empty for both) and returns how many were
// removed.
func (q *Queue) Clean(age time.Duration, status Status) int {
	cutoff := time.Now().Add(-age)
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	keep := q.settled[:0]
	for _, j := range q.settled {
		match := status == "" || j.status == status
		if match && j.settledAt.Before(cutoff) {
			removed++
			continue
		}
		keep = append(keep, j)
	}
	q.settled = keep

	if status == "" || status == StatusFailed {
		keepDead := q.dead[:0]
		for _, j := range q.dead {
			if j.settledAt.Before(cutoff) {
				continue
			}
			keepDead = append(keepDead, j)
		}
		q.dead = keepDead
	}
	return removed
}

// Stop shuts the queue down: running jobs get their context canceled,
// waiting jobs settle with ErrQueueClosed, workers drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var orphans []*Job
	for p := range q.waiting {
		orphans = append(orphans, q.waiting[p]...)
		q.waiting[p] = nil
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	for _, j := range orphans {
		q.settle(j, nil, ErrQueueClosed)
	}
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		job := q.next()
		if job == nil {
			return
		}
		q.run(job)
	}
}

// next blocks until a dispatchable job exists. A job is dispatchable
// when no earlier job for the same call id holds the order gate.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for p := PriorityUrgent; p >= PriorityLow; p-- {
			for i, job := range q.waiting[p] {
				holder := q.inFlight[job.CallID]
				if holder != nil && holder != job {
					continue
				}
				q.waiting[p] = append(q.waiting[p][:i], q.waiting[p][i+1:]...)
				q.inFlight[job.CallID] = job
				job.status = StatusActive
				metrics.QueueDepth.WithLabelValues(q.name).Set(float64(q.depthLocked()))
				return job
			}
		}
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
}

func (q *Queue) run(job *Job) {
	job.Attempt++
	result, err := q.handler(q.baseCtx, job)
	if err == nil {
		q.releaseGate(job)
		q.settle(job, result, nil)
		return
	}

	q.log.Warn().Err(err).Str("call_id", job.CallID).
		Int("attempt", job.Attempt).Int("max", job.MaxAttempts).
		Msg("job attempt failed")

	if job.Attempt >= job.MaxAttempts || q.baseCtx.Err() != nil {
		q.releaseGate(job)
		q.settle(job, nil, fmt.Errorf("after %d attempts: %w", job.Attempt, err))
		return
	}

	// The order gate stays held across the backoff so later jobs for
	// this call cannot overtake the retry.
	metrics.JobsTotal.WithLabelValues(q.name, "retried").Inc()
	backoff := q.cfg.BackoffBase * (1 << job.Attempt)
	time.AfterFunc(backoff, func() { q.push(job, true) })
}

func (q *Queue) releaseGate(job *Job) {
	q.mu.Lock()
	if q.inFlight[job.CallID] == job {
		delete(q.inFlight, job.CallID)
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) settle(job *Job, result any, err error) {
	job.result = result
	job.err = err
	job.settledAt = time.Now()

	q.mu.Lock()
	if err != nil {
		job.status = StatusFailed
		q.dead = append(q.dead, job)
	} else {
		job.status = StatusCompleted
	}
	q.settled = append(q.settled, job)
	q.mu.Unlock()

	if err != nil {
		metrics.JobsTotal.WithLabelValues(q.name, "failed").Inc()
	} else {
		metrics.JobsTotal.WithLabelValues(q.name, "completed").Inc()
	}
	close(job.done)

	if err != nil {
		for _, fn := range q.onFailed {
			fn(job)
		}
	} else {
		for _, fn := range q.onCompleted {
			fn(job)
		}
	}
}
