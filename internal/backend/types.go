// Package backend defines the core types shared across the reference export
// backend subsystems.
package backend

import (
	"errors"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

// JobStatus represents the lifecycle state of a backend export job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Store errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	ErrJobFinished = errors.New("job already finished")
	ErrNotFound    = errors.New("object not found")
)

// Job is the metadata persisted for each requested export.
type Job struct {
	ID          string           `json:"id"`
	Kind        export.Kind      `json:"kind"`
	UserID      string           `json:"user_id,omitempty"`
	Status      JobStatus        `json:"status"`
	Progress    int              `json:"progress"`
	Filters     export.FilterSet `json:"filters"`
	Rows        int              `json:"rows"`
	ArtifactKey string           `json:"artifact_key,omitempty"`
	DownloadURL string           `json:"download_url,omitempty"`
	ErrorText   string           `json:"error_text,omitempty"`
	Submitted   time.Time        `json:"submitted_at"`
	Started     *time.Time       `json:"started_at,omitempty"`
	Finished    *time.Time       `json:"finished_at,omitempty"`
}

// Report renders the job in the shape of the status endpoint. Queued jobs
// read as running; canceled jobs read as errors.
func (j Job) Report() export.StatusReport {
	r := export.StatusReport{Progress: export.ClampProgress(j.Progress)}
	switch j.Status {
	case JobStatusSucceeded:
		r.Status = export.StatusCompleted
		r.Progress = 100
		r.DownloadURL = j.DownloadURL
	case JobStatusFailed:
		r.Status = export.StatusError
		r.Error = j.ErrorText
	case JobStatusCanceled:
		r.Status = export.StatusError
		r.Error = "export canceled"
	default:
		r.Status = export.StatusRunning
	}
	return r
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string           `json:"job_id"`
	Kind      export.Kind      `json:"kind"`
	Filters   export.FilterSet `json:"filters,omitempty"`
	Attempt   int              `json:"attempt"`
	Submitted int64            `json:"submitted"`
	// Trace is the propagated trace context of the submitting request.
	Trace map[string]string `json:"trace,omitempty"`
}

// CompletionEvent is published when an export reaches a terminal status.
type CompletionEvent struct {
	JobID       string    `json:"job_id"`
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id,omitempty"`
	Status      JobStatus `json:"status"`
	Rows        int       `json:"rows"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	ErrorText   string    `json:"error_text,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// PartitionKey keys events by job so every event of a job lands together.
func (e CompletionEvent) PartitionKey() string {
	return e.JobID
}
