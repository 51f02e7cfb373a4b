package pipeline

import (
	"github.com/camvault/camvault/internal/jobqueue"
)

// Priority used for fetches triggered automatically by camera creation.
// Manual API scheduling may choose its own.
const autoFetchPriority = 5

// ScheduleRequest describes a camera that may need a default image.
type ScheduleRequest struct {
	CameraID      uint   `json:"camera_id"`
	Brand         string `json:"brand"`
	Model         string `json:"model"`
	HasUserImages bool   `json:"has_user_images"`
}

// ScheduleResult reports whether a fetch job was enqueued and why not when
// it was skipped.
type ScheduleResult struct {
	Scheduled bool   `json:"scheduled"`
	Reason    string `json:"reason,omitempty"`
	JobID     int    `json:"job_id,omitempty"`
}

// Scheduler is the hook the camera CRUD layer calls after creating a
// camera.
type Scheduler struct {
	queue *jobqueue.Queue
}

// NewScheduler creates a Scheduler enqueueing on queue.
func NewScheduler(queue *jobqueue.Queue) *Scheduler {
	return &Scheduler{queue: queue}
}

// ScheduleDefaultImageFetch enqueues a fetch-default-image job for the
// camera unless it already has user images or lacks a brand/model identity.
// Skipping is a normal outcome, not an error.
func (s *Scheduler) ScheduleDefaultImageFetch(req ScheduleRequest) (ScheduleResult, error) {
	if req.HasUserImages {
		return ScheduleResult{Reason: "camera has user-supplied images"}, nil
	}
	if req.Brand == "" || req.Model == "" {
		return ScheduleResult{Reason: "camera has no brand/model to search for"}, nil
	}

	payload := map[string]any{
		"brand":     req.Brand,
		"model":     req.Model,
		"camera_id": int(req.CameraID),
	}
	snapshot, err := s.queue.Enqueue(jobqueue.TypeFetchDefaultImage, payload, autoFetchPriority)
	if err != nil {
		return ScheduleResult{}, err
	}
	return ScheduleResult{Scheduled: true, JobID: snapshot.ID}, nil
}
