package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/jobqueue"
)

// Batch size cap for manually scheduled population runs.
const maxPopulateBatch = 100

// initJobRoutes registers job introspection and manual scheduling endpoints.
func (c *Controller) initJobRoutes() {
	c.Group.GET("/jobs", c.ListJobs)
	c.Group.GET("/jobs/stats", c.JobStats)
	c.Group.GET("/jobs/:id", c.GetJob)
	c.Group.POST("/jobs/fetch-default-image", c.ScheduleFetchDefaultImage)
	c.Group.POST("/jobs/cache-image", c.ScheduleCacheImage)
	c.Group.POST("/jobs/cache-cleanup", c.ScheduleCacheCleanup)
	c.Group.POST("/jobs/populate-default-images", c.SchedulePopulateDefaults)
}

// ListJobs returns job snapshots, newest first, with optional status and
// type filters plus limit/offset pagination.
func (c *Controller) ListJobs(ctx echo.Context) error {
	status := jobqueue.JobStatus(ctx.QueryParam("status"))
	switch status {
	case "", jobqueue.StatusPending, jobqueue.StatusRunning, jobqueue.StatusCompleted, jobqueue.StatusFailed:
	default:
		return c.HandleError(ctx, errors.Validation("unknown status filter"),
			"Unknown status filter", http.StatusBadRequest)
	}

	jobs := c.Queue.List(status)

	if jobType := ctx.QueryParam("type"); jobType != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.Type == jobqueue.JobType(jobType) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	total := len(jobs)
	offset := queryInt(ctx, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := queryInt(ctx, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"jobs":   jobs[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob returns one job snapshot including its retry history fields.
func (c *Controller) GetJob(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid job ID", http.StatusBadRequest)
	}

	job, err := c.Queue.Get(int(id))
	if err != nil {
		return c.HandleError(ctx, err, "Job not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, job)
}

// JobStats returns aggregate queue statistics.
func (c *Controller) JobStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Queue.GetStats())
}

// ScheduleJobRequest is the JSON body for manual scheduling endpoints.
type ScheduleJobRequest struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	URL      string `json:"url"`
	Priority int    `json:"priority"`
	Limit    int    `json:"limit"`
}

// ScheduleFetchDefaultImage manually enqueues a single-model fetch.
func (c *Controller) ScheduleFetchDefaultImage(ctx echo.Context) error {
	var req ScheduleJobRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Brand == "" || req.Model == "" {
		return c.HandleError(ctx, errors.Validation("brand and model are required"),
			"Brand and model are required", http.StatusBadRequest)
	}

	return c.enqueue(ctx, jobqueue.TypeFetchDefaultImage,
		map[string]any{"brand": req.Brand, "model": req.Model}, req.Priority)
}

// ScheduleCacheImage manually enqueues a cache warm for one URL.
func (c *Controller) ScheduleCacheImage(ctx echo.Context) error {
	var req ScheduleJobRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.URL == "" {
		return c.HandleError(ctx, errors.Validation("url is required"),
			"URL is required", http.StatusBadRequest)
	}

	return c.enqueue(ctx, jobqueue.TypeCacheImage, map[string]any{"url": req.URL}, req.Priority)
}

// ScheduleCacheCleanup manually enqueues an expiry sweep.
func (c *Controller) ScheduleCacheCleanup(ctx echo.Context) error {
	var req ScheduleJobRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	return c.enqueue(ctx, jobqueue.TypeCleanupCache, nil, req.Priority)
}

// SchedulePopulateDefaults manually enqueues a bulk population run with a
// clamped batch size.
func (c *Controller) SchedulePopulateDefaults(ctx echo.Context) error {
	var req ScheduleJobRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	limit := req.Limit
	if limit < 0 {
		limit = 0
	}
	if limit > maxPopulateBatch {
		limit = maxPopulateBatch
	}

	var payload map[string]any
	if limit > 0 {
		payload = map[string]any{"limit": limit}
	}
	return c.enqueue(ctx, jobqueue.TypePopulateDefaults, payload, req.Priority)
}

// enqueue submits the job with a clamped priority and reports the snapshot.
func (c *Controller) enqueue(ctx echo.Context, jobType jobqueue.JobType, payload map[string]any, priority int) error {
	job, err := c.Queue.Enqueue(jobType, payload, jobqueue.ClampPriority(priority))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to enqueue job", http.StatusInternalServerError)
	}
	if c.Metrics != nil {
		c.Metrics.JobQueue.IncrementEnqueued(string(jobType))
	}
	return ctx.JSON(http.StatusAccepted, job)
}
