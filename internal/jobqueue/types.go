package jobqueue

import (
	"context"
	"time"
)

// JobType identifies the kind of work a job performs. One handler is
// registered per type.
type JobType string

const (
	TypeFetchDefaultImage JobType = "fetch-default-image"
	TypeCacheImage        JobType = "cache-image"
	TypeCleanupCache      JobType = "cleanup-cache"
	TypePopulateDefaults  JobType = "populate-default-images"
)

// JobStatus is the lifecycle state of a job. A job is in exactly one status
// at a time.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// terminal reports whether a status admits no further transitions.
func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority bounds. Higher priority jobs are dispatched sooner.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// ClampPriority forces a priority into the valid range, substituting the
// default for zero.
func ClampPriority(priority int) int {
	switch {
	case priority == 0:
		return DefaultPriority
	case priority < MinPriority:
		return MinPriority
	case priority > MaxPriority:
		return MaxPriority
	}
	return priority
}

// Handler executes one job type. The payload is the opaque map supplied at
// enqueue time; the returned value is retained on the job as its result.
type Handler interface {
	Execute(ctx context.Context, payload map[string]any) (any, error)
	Description() string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	Fn   func(ctx context.Context, payload map[string]any) (any, error)
	Desc string
}

func (h HandlerFunc) Execute(ctx context.Context, payload map[string]any) (any, error) {
	return h.Fn(ctx, payload)
}

func (h HandlerFunc) Description() string { return h.Desc }

// EventKind enumerates the lifecycle notifications the queue publishes.
type EventKind string

const (
	EventAdded     EventKind = "added"
	EventStarted   EventKind = "started"
	EventRetry     EventKind = "retry"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCleaned   EventKind = "cleaned"
)

// Event is a lifecycle notification. Events carry no control authority; the
// queue never waits on or reacts to its observers.
type Event struct {
	Kind     EventKind `json:"kind"`
	JobID    int       `json:"job_id"`
	Type     JobType   `json:"type"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives lifecycle events. Events are delivered synchronously
// from queue goroutines outside the queue lock, so implementations should
// return promptly.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

func (f ObserverFunc) Notify(event Event) { f(event) }
