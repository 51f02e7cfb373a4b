package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// JobQueueMetrics contains all Prometheus metrics related to background job
// processing.
type JobQueueMetrics struct {
	JobsEnqueued *prometheus.CounterVec
	JobsComplete *prometheus.CounterVec
	JobsFailed   *prometheus.CounterVec
	JobRetries   *prometheus.CounterVec
	RunningJobs  prometheus.Gauge
	JobDuration  *prometheus.HistogramVec
	registry     *prometheus.Registry
}

// NewJobQueueMetrics creates a new instance of JobQueueMetrics registered
// against the given registry.
func NewJobQueueMetrics(registry *prometheus.Registry) (*JobQueueMetrics, error) {
	m := &JobQueueMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize JobQueue metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register JobQueue metrics: %w", err)
	}
	return m, nil
}

func (m *JobQueueMetrics) initMetrics() error {
	jobTypeLabel := []string{"job_type"}

	m.JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_enqueued_total",
		Help: "Total number of jobs enqueued.",
	}, jobTypeLabel)

	m.JobsComplete = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_completed_total",
		Help: "Total number of jobs completed successfully.",
	}, jobTypeLabel)

	m.JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_failed_total",
		Help: "Total number of jobs that permanently failed.",
	}, jobTypeLabel)

	m.JobRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_retries_total",
		Help: "Total number of job retry attempts.",
	}, jobTypeLabel)

	m.RunningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobqueue_running_jobs",
		Help: "Number of jobs currently running.",
	})

	m.JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobqueue_job_duration_seconds",
		Help:    "Wall-clock duration of job attempts in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, jobTypeLabel)

	return nil
}

// IncrementEnqueued increases the enqueued counter for a job type.
func (m *JobQueueMetrics) IncrementEnqueued(jobType string) {
	m.JobsEnqueued.WithLabelValues(jobType).Inc()
}

// IncrementCompleted increases the completed counter for a job type.
func (m *JobQueueMetrics) IncrementCompleted(jobType string) {
	m.JobsComplete.WithLabelValues(jobType).Inc()
}

// IncrementFailed increases the failed counter for a job type.
func (m *JobQueueMetrics) IncrementFailed(jobType string) {
	m.JobsFailed.WithLabelValues(jobType).Inc()
}

// IncrementRetries increases the retry counter for a job type.
func (m *JobQueueMetrics) IncrementRetries(jobType string) {
	m.JobRetries.WithLabelValues(jobType).Inc()
}

// SetRunningJobs updates the running-jobs gauge.
func (m *JobQueueMetrics) SetRunningJobs(count int) {
	m.RunningJobs.Set(float64(count))
}

// ObserveJobDuration records one attempt's wall-clock duration in seconds.
func (m *JobQueueMetrics) ObserveJobDuration(jobType string, durationSeconds float64) {
	m.JobDuration.WithLabelValues(jobType).Observe(durationSeconds)
}

// Collect implements the prometheus.Collector interface.
func (m *JobQueueMetrics) Collect(ch chan<- prometheus.Metric) {
	m.JobsEnqueued.Collect(ch)
	m.JobsComplete.Collect(ch)
	m.JobsFailed.Collect(ch)
	m.JobRetries.Collect(ch)
	ch <- m.RunningJobs
	m.JobDuration.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *JobQueueMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.JobsEnqueued.Describe(ch)
	m.JobsComplete.Describe(ch)
	m.JobsFailed.Describe(ch)
	m.JobRetries.Describe(ch)
	ch <- m.RunningJobs.Desc()
	m.JobDuration.Describe(ch)
}
