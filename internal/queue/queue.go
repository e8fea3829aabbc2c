package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"viba/internal/domain"
	"viba/internal/infra"
)

// Status tracks a job through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one queued generation request. Inputs and Results carry inline image
// payloads; Params holds type-specific knobs the handler interprets.
type Job struct {
	ID          string
	OwnerID     string
	Type        domain.GenerationType
	Status      Status
	StatusText  string
	Inputs      []string
	Params      map[string]any
	Results     []string
	Description string
	Err         string
	// Cause keeps the typed failure so callers can classify it; Err is the
	// client-facing rendering of the same thing.
	Cause     error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome is what a handler produces for a successful job.
type Outcome struct {
	Results     []string
	Description string
}

// Handler executes one job. setStatus publishes progress text visible in
// snapshots while the job is processing.
type Handler interface {
	Process(ctx context.Context, job Job, setStatus func(text string)) (Outcome, error)
}

// Queue runs jobs one at a time in submission order. A single dispatcher
// goroutine owns execution, so at most one job is ever processing; everything
// else stays pending until its turn.
type Queue struct {
	handler Handler
	logger  infra.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	done map[string]chan struct{}

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a queue over the given handler. Call Start before submitting.
func New(handler Handler, logger infra.Logger) *Queue {
	return &Queue{
		handler: handler,
		logger:  logger,
		jobs:    make(map[string]*Job),
		done:    make(map[string]chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start launches the dispatcher. The context bounds every job execution.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.run(ctx)
	q.logger.Info().Msg("queue: dispatcher started")
}

// Stop shuts the dispatcher down. The job in flight runs to completion; jobs
// still pending stay pending and are never picked up.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
	q.logger.Info().Msg("queue: dispatcher stopped")
}

// Submit enqueues a new job and returns its id.
func (q *Queue) Submit(ownerID string, jobType domain.GenerationType, inputs []string, params map[string]any) string {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      jobType,
		Status:    StatusPending,
		Inputs:    inputs,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.done[job.ID] = make(chan struct{})
	q.mu.Unlock()

	q.notify()
	q.logger.Info().Str("job_id", job.ID).Str("type", string(jobType)).Msg("queue: job submitted")
	return job.ID
}

// Retry moves a failed job back to pending, clearing its previous outcome.
func (q *Queue) Retry(ownerID, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if job.Status != StatusFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried: %w", id, job.Status, domain.ErrValidation)
	}

	job.Status = StatusPending
	job.StatusText = ""
	job.Results = nil
	job.Description = ""
	job.Err = ""
	job.Cause = nil
	job.UpdatedAt = time.Now()
	q.done[id] = make(chan struct{})

	q.notify()
	return nil
}

// Remove deletes a job that is not currently processing.
func (q *Queue) Remove(ownerID, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if job.Status == StatusProcessing {
		return fmt.Errorf("job %s is processing: %w", id, domain.ErrValidation)
	}

	// A pending job may still have waiters parked on its done channel;
	// terminal jobs closed it already.
	if job.Status == StatusPending {
		close(q.done[id])
	}
	delete(q.jobs, id)
	delete(q.done, id)
	return nil
}

// Get returns a copy of the job, scoped to its owner.
func (q *Queue) Get(ownerID, id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return cloneJob(job), nil
}

// Snapshot returns copies of the owner's jobs, newest first.
func (q *Queue) Snapshot(ownerID string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.OwnerID == ownerID {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Wait blocks until the job reaches a terminal state and returns it.
func (q *Queue) Wait(ctx context.Context, ownerID, id string) (Job, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.OwnerID != ownerID {
		q.mu.Unlock()
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	done := q.done[id]
	q.mu.Unlock()

	select {
	case <-done:
		return q.Get(ownerID, id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-q.wake:
		}
		for q.dispatchNext(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			default:
			}
		}
	}
}

// dispatchNext runs the oldest pending job, if any. Returns true while there
// may be more work so the dispatcher drains the backlog before sleeping.
func (q *Queue) dispatchNext(ctx context.Context) bool {
	q.mu.Lock()
	var next *Job
	for _, job := range q.jobs {
		if job.Status != StatusPending {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) {
			next = job
		}
	}
	if next == nil {
		q.mu.Unlock()
		return false
	}
	next.Status = StatusProcessing
	next.UpdatedAt = time.Now()
	id := next.ID
	snapshot := cloneJob(next)
	done := q.done[id]
	q.mu.Unlock()

	setStatus := func(text string) {
		q.mu.Lock()
		if job, ok := q.jobs[id]; ok && job.Status == StatusProcessing {
			job.StatusText = text
			job.UpdatedAt = time.Now()
		}
		q.mu.Unlock()
	}

	q.logger.Info().Str("job_id", id).Str("type", string(snapshot.Type)).Msg("queue: job processing")
	outcome, err := q.handler.Process(ctx, snapshot, setStatus)

	q.mu.Lock()
	if job, ok := q.jobs[id]; ok {
		if err != nil {
			job.Status = StatusFailed
			job.Err = err.Error()
			job.Cause = err
		} else {
			job.Status = StatusCompleted
			job.Results = outcome.Results
			job.Description = outcome.Description
		}
		job.StatusText = ""
		job.UpdatedAt = time.Now()
	}
	q.mu.Unlock()
	close(done)

	if err != nil {
		q.logger.Warn().Err(err).Str("job_id", id).Msg("queue: job failed")
	} else {
		q.logger.Info().Str("job_id", id).Int("results", len(outcome.Results)).Msg("queue: job completed")
	}
	return true
}

func cloneJob(job *Job) Job {
	out := *job
	out.Inputs = append([]string(nil), job.Inputs...)
	out.Results = append([]string(nil), job.Results...)
	if job.Params != nil {
		params := make(map[string]any, len(job.Params))
		for k, v := range job.Params {
			params[k] = v
		}
		out.Params = params
	}
	return out
}
