// Package jobqueue is an in-memory, priority-ordered scheduler with bounded
// concurrency, fixed-delay retries and per-job timeouts. Instances are
// constructed and injected; there is no package-level queue.
package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

// Dispatch loop pacing. The loop wakes quickly while there may be runnable
// work and backs off when the queue is idle.
const (
	busyPollInterval = 100 * time.Millisecond
	idlePollInterval = 1 * time.Second
)

// Queue schedules background jobs. All state is in memory; jobs do not
// survive a restart.
type Queue struct {
	mu        sync.Mutex
	jobs      map[int]*Job
	order     []int // insertion order, for FIFO within a priority band
	counter   int
	handlers  map[JobType]Handler
	observers []Observer

	maxConcurrency int
	maxRetries     int
	retryDelay     time.Duration
	jobTimeout     time.Duration
	gcInterval     time.Duration
	gcMaxAge       time.Duration

	inFlight  int
	isRunning bool
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	stats     Stats

	logger *slog.Logger
	debug  bool
}

// New creates a stopped queue from settings. Register handlers before
// calling Start.
func New(settings *conf.Settings) *Queue {
	return &Queue{
		jobs:           make(map[int]*Job),
		handlers:       make(map[JobType]Handler),
		maxConcurrency: settings.JobQueue.MaxConcurrency,
		maxRetries:     settings.JobQueue.MaxRetries,
		retryDelay:     settings.JobQueue.RetryDelay,
		jobTimeout:     settings.JobQueue.JobTimeout,
		gcInterval:     settings.JobQueue.GCInterval,
		gcMaxAge:       settings.JobQueue.GCMaxAge,
		logger:         logging.ForService("jobqueue"),
		debug:          settings.JobQueue.Debug,
	}
}

// RegisterHandler binds a handler to a job type, replacing any previous one.
func (q *Queue) RegisterHandler(jobType JobType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Subscribe registers an observer for lifecycle events.
func (q *Queue) Subscribe(observer Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, observer)
}

// Start launches the dispatch and garbage-collection loops. Starting an
// already running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	go q.dispatchLoop(loopCtx)
	go q.gcLoop(loopCtx)
	q.logger.Info("Job queue started",
		"max_concurrency", q.maxConcurrency, "max_retries", q.maxRetries)
}

// Stop halts dispatch and waits up to timeout for in-flight jobs to finish.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Job queue stopped")
		return nil
	case <-time.After(timeout):
		return errors.Timeout("jobqueue_stop", timeout)
	}
}

// Enqueue adds a job and returns its snapshot. The priority is clamped to
// the valid range; a zero maxRetries inherits the queue default.
func (q *Queue) Enqueue(jobType JobType, payload map[string]any, priority int) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.handlers[jobType]; !ok {
		return Snapshot{}, errors.New(fmt.Errorf("no handler registered for job type %q", jobType)).
			Component("jobqueue").
			Category(errors.CategoryValidation).
			Context("job_type", string(jobType)).
			Build()
	}

	q.counter++
	now := time.Now()
	job := &Job{
		ID:            q.counter,
		Type:          jobType,
		Payload:       payload,
		Status:        StatusPending,
		Priority:      ClampPriority(priority),
		MaxRetries:    q.maxRetries,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.stats.Total++

	snapshot := job.snapshot()
	q.publishLocked(Event{Kind: EventAdded, JobID: job.ID, Type: job.Type, At: now})

	if q.debug {
		q.logger.Debug("Job enqueued", "job_id", job.ID, "type", job.Type, "priority", job.Priority)
	}
	return snapshot, nil
}

// Get returns the snapshot of one job.
func (q *Queue) Get(id int) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, errors.NotFound("job", fmt.Sprintf("%d", id))
	}
	return job.snapshot(), nil
}

// List returns snapshots of all known jobs, newest first, optionally
// filtered by status.
func (q *Queue) List(status JobStatus) []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(q.jobs))
	for _, job := range q.jobs {
		if status != "" && job.Status != status {
			continue
		}
		snapshots = append(snapshots, job.snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID > snapshots[j].ID })
	return snapshots
}

// GetStats returns a point-in-time summary of queue activity.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.Pending, stats.Running, stats.Completed, stats.Failed = 0, 0, 0, 0
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// dispatchLoop repeatedly starts eligible jobs while capacity allows,
// sleeping briefly at capacity and longer when nothing is pending.
func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		started := q.startEligible(ctx)

		interval := idlePollInterval
		if started || q.hasPendingWork() {
			interval = busyPollInterval
		}

		select {
		case <-ctx.Done():
			q.logger.Debug("Dispatch loop stopped", "reason", ctx.Err())
			return
		case <-time.After(interval):
		}
	}
}

// startEligible launches workers for due pending jobs up to the concurrency
// bound. Returns true if any job was started.
func (q *Queue) startEligible(ctx context.Context) bool {
	started := false
	for {
		q.mu.Lock()
		if q.inFlight >= q.maxConcurrency {
			q.mu.Unlock()
			return started
		}

		job := q.nextDueLocked()
		if job == nil {
			q.mu.Unlock()
			return started
		}

		job.Attempts++
		job.Status = StatusRunning
		job.StartedAt = time.Now()
		q.inFlight++

		q.publishLocked(Event{
			Kind: EventStarted, JobID: job.ID, Type: job.Type, Attempts: job.Attempts, At: job.StartedAt,
		})
		q.mu.Unlock()

		q.workers.Add(1)
		go func(j *Job) {
			defer q.workers.Done()
			q.runJob(ctx, j)
		}(job)
		started = true
	}
}

// nextDueLocked picks the highest-priority due pending job, FIFO within a
// priority band. Must be called with the lock held.
func (q *Queue) nextDueLocked() *Job {
	now := time.Now()
	var best *Job
	for _, id := range q.order {
		job, ok := q.jobs[id]
		if !ok || job.Status != StatusPending || job.NextAttemptAt.After(now) {
			continue
		}
		// Insertion order iteration makes the first hit in a band the oldest.
		if best == nil || job.Priority > best.Priority {
			best = job
		}
	}
	return best
}

// hasPendingWork reports whether any pending job exists, due or not.
func (q *Queue) hasPendingWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			return true
		}
	}
	return false
}

// runJob executes one attempt of a job under the per-job timeout, then
// applies the retry-or-fail transition. A panicking handler is treated as a
// failed attempt; nothing escapes the dispatch machinery.
func (q *Queue) runJob(ctx context.Context, job *Job) {
	q.mu.Lock()
	handler := q.handlers[job.Type]
	timeout := q.jobTimeout
	q.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, err := handler.Execute(execCtx, job.Payload)
		resultCh <- outcome{result: result, err: err}
	}()

	var result any
	var err error
	select {
	case out := <-resultCh:
		result, err = out.result, out.err
	case <-execCtx.Done():
		// The worker slot is reclaimed immediately; the abandoned handler
		// goroutine sees its context cancelled and winds down on its own.
		if execCtx.Err() == context.DeadlineExceeded {
			err = errors.Timeout(string(job.Type), timeout)
		} else {
			err = execCtx.Err()
		}
	}

	q.settle(job, result, err)
}

// settle applies the terminal or retry transition for one finished attempt.
func (q *Queue) settle(job *Job, result any, err error) {
	q.mu.Lock()
	q.inFlight--

	now := time.Now()
	var event Event
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.CompletedAt = now
		job.Result = result
		job.LastError = ""
		event = Event{Kind: EventCompleted, JobID: job.ID, Type: job.Type, Attempts: job.Attempts, At: now}

	case job.Attempts < job.MaxRetries+1:
		job.Status = StatusPending
		job.LastError = err.Error()
		job.NextAttemptAt = now.Add(q.retryDelay)
		q.stats.Retries++
		event = Event{
			Kind: EventRetry, JobID: job.ID, Type: job.Type,
			Attempts: job.Attempts, Error: job.LastError, At: now,
		}

	default:
		job.Status = StatusFailed
		job.FailedAt = now
		job.LastError = err.Error()
		event = Event{
			Kind: EventFailed, JobID: job.ID, Type: job.Type,
			Attempts: job.Attempts, Error: job.LastError, At: now,
		}
	}
	q.publishLocked(event)
	q.mu.Unlock()

	switch event.Kind {
	case EventCompleted:
		if job.Attempts > 1 {
			q.logger.Info("Job succeeded after retries",
				"job_id", job.ID, "type", job.Type, "attempts", job.Attempts)
		} else if q.debug {
			q.logger.Debug("Job completed", "job_id", job.ID, "type", job.Type)
		}
	case EventRetry:
		q.logger.Warn("Job attempt failed, will retry",
			"job_id", job.ID, "type", job.Type,
			"attempts", job.Attempts, "max_attempts", job.MaxRetries+1, "error", err)
	case EventFailed:
		q.logger.Error("Job permanently failed",
			"job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "error", err)
	}
}

// gcLoop periodically removes terminal jobs older than the retention window.
func (q *Queue) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(q.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.CollectGarbage()
		}
	}
}

// CollectGarbage removes terminal jobs whose completion is older than the
// retention window and returns how many were removed.
func (q *Queue) CollectGarbage() int {
	q.mu.Lock()

	cutoff := time.Now().Add(-q.gcMaxAge)
	var removed []Event
	kept := q.order[:0]
	for _, id := range q.order {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		if at := job.terminalAt(); !at.IsZero() && at.Before(cutoff) {
			delete(q.jobs, id)
			q.stats.Cleaned++
			removed = append(removed, Event{
				Kind: EventCleaned, JobID: id, Type: job.Type, At: time.Now(),
			})
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	observers := make([]Observer, len(q.observers))
	copy(observers, q.observers)
	q.mu.Unlock()

	for _, event := range removed {
		for _, observer := range observers {
			observer.Notify(event)
		}
	}
	if len(removed) > 0 {
		q.logger.Info("Garbage-collected terminal jobs", "removed", len(removed))
	}
	return len(removed)
}

// publishLocked delivers an event to observers from a fresh goroutine so
// delivery never runs under the queue lock. Must be called with the lock
// held; the observer slice is copied first.
func (q *Queue) publishLocked(event Event) {
	if len(q.observers) == 0 {
		return
	}
	observers := make([]Observer, len(q.observers))
	copy(observers, q.observers)
	go func() {
		for _, observer := range observers {
			observer.Notify(event)
		}
	}()
}
