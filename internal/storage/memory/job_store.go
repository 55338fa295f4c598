package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]backend.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]backend.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job backend.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create %s: %w", job.ID, backend.ErrJobExists)
	}
	if job.Status == "" {
		job.Status = backend.JobStatusQueued
	}
	job.Filters = job.Filters.Clone()
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (backend.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return backend.Job{}, fmt.Errorf("get %s: %w", jobID, backend.ErrJobNotFound)
	}
	job.Filters = job.Filters.Clone()
	return job, nil
}

// UpdateProgress marks the job running and records its progress. Progress
// never decreases; updates to terminal jobs are ignored.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, progress, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update %s: %w", jobID, backend.ErrJobNotFound)
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.Started == nil {
		job.Started = pointerTime(s.now())
	}
	job.Status = backend.JobStatusRunning
	if p := export.ClampProgress(progress); p > job.Progress {
		job.Progress = p
	}
	job.Rows = rows
	s.jobs[jobID] = job
	return nil
}

// FinishJob records the terminal fields of job unless it already finished.
func (s *JobStore) FinishJob(_ context.Context, job backend.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("finish %s: %w", job.ID, backend.ErrJobNotFound)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("finish %s as %s: %w (%s)", job.ID, job.Status, backend.ErrJobFinished, current.Status)
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("finish %s: status %q is not terminal", job.ID, job.Status)
	}
	current.Status = job.Status
	current.ErrorText = job.ErrorText
	current.ArtifactKey = job.ArtifactKey
	current.DownloadURL = job.DownloadURL
	if job.Rows > 0 {
		current.Rows = job.Rows
	}
	if job.Status == backend.JobStatusSucceeded {
		current.Progress = 100
	}
	current.Finished = pointerTime(s.now())
	s.jobs[job.ID] = current
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
