package jobqueue

import "time"

// Job is one unit of background work. The queue owns the struct exclusively;
// external callers only ever see snapshots.
type Job struct {
	ID          int
	Type        JobType
	Payload     map[string]any
	Status      JobStatus
	Priority    int
	Attempts    int
	MaxRetries  int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	FailedAt    time.Time
	// NextAttemptAt gates dispatch eligibility: a pending job is not picked
	// up before this instant, which is how the retry backoff is enforced.
	NextAttemptAt time.Time
	LastError     string
	Result        any
}

// terminalAt returns when the job reached its terminal state, or the zero
// time if it has not.
func (j *Job) terminalAt() time.Time {
	switch j.Status {
	case StatusCompleted:
		return j.CompletedAt
	case StatusFailed:
		return j.FailedAt
	}
	return time.Time{}
}

// Snapshot is the externally visible copy of a job's state.
type Snapshot struct {
	ID          int            `json:"id"`
	Type        JobType        `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      JobStatus      `json:"status"`
	Priority    int            `json:"priority"`
	Attempts    int            `json:"attempts"`
	MaxRetries  int            `json:"max_retries"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Result      any            `json:"result,omitempty"`
}

// snapshot copies the job's state. Must be called with the queue lock held.
func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		ID:         j.ID,
		Type:       j.Type,
		Payload:    j.Payload,
		Status:     j.Status,
		Priority:   j.Priority,
		Attempts:   j.Attempts,
		MaxRetries: j.MaxRetries,
		CreatedAt:  j.CreatedAt,
		LastError:  j.LastError,
		Result:     j.Result,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		s.StartedAt = &t
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		s.CompletedAt = &t
	}
	if !j.FailedAt.IsZero() {
		t := j.FailedAt
		s.FailedAt = &t
	}
	return s
}

// Stats is a point-in-time summary of queue activity.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retries   int `json:"retries"`
	Cleaned   int `json:"cleaned"`
}
