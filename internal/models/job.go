package models

import (
	"errors"
	"time"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"

	JobModeExtract  = "extract"
	JobModeDiscover = "discover"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job is a persisted extraction or discovery run for one portal.
type Job struct {
	ID          string     `json:"id"`
	Portal      string     `json:"portal"`
	Mode        string     `json:"mode"`
	Items       []WorkItem `json:"items,omitempty"`
	Status      string     `json:"status"`
	Strategy    string     `json:"strategy,omitempty"`
	Processed   int        `json:"processed"`
	Matched     int        `json:"matched"`
	Updated     int        `json:"updated"`
	Errors      int        `json:"errors"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobLine is one progress or error entry of a job log.
type JobLine struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	JobLineProgress = "progress"
	JobLineError    = "error"
)

type JobStats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	CatalogItems  int     `json:"catalog_items"`
	PricedItems   int     `json:"priced_items"`
	SuccessRate   float64 `json:"success_rate"`
}
