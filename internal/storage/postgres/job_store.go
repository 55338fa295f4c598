package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

const uniqueViolation = "23505"

// JobStore persists export jobs in Postgres.
type JobStore struct {
	db    DB
	table string
	now   func() time.Time
}

// NewJobStore wraps db. An empty table defaults to export_jobs.
func NewJobStore(db DB, table string) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "export_jobs")
	if err != nil {
		return nil, err
	}
	return &JobStore{
		db:    db,
		table: name,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job backend.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if job.Status == "" {
		job.Status = backend.JobStatusQueued
	}
	filtersJSON, err := json.Marshal(job.Filters.Clone())
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, kind, user_id, status, progress, filters, submitted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.table)
	_, err = s.db.Exec(ctx, query,
		job.ID, string(job.Kind), job.UserID, string(job.Status), job.Progress, filtersJSON, job.Submitted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create %s: %w", job.ID, backend.ErrJobExists)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (backend.Job, error) {
	query := fmt.Sprintf(`
SELECT id, kind, user_id, status, progress, filters, rows_exported,
	artifact_key, download_url, error_text, submitted_at, started_at, finished_at
FROM %s WHERE id = $1`, s.table)
	var (
		job         backend.Job
		kind        string
		status      string
		filtersJSON []byte
	)
	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &kind, &job.UserID, &status, &job.Progress, &filtersJSON, &job.Rows,
		&job.ArtifactKey, &job.DownloadURL, &job.ErrorText, &job.Submitted, &job.Started, &job.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.Job{}, fmt.Errorf("get %s: %w", jobID, backend.ErrJobNotFound)
	}
	if err != nil {
		return backend.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Kind = export.Kind(kind)
	job.Status = backend.JobStatus(status)
	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &job.Filters); err != nil {
			return backend.Job{}, fmt.Errorf("decode filters: %w", err)
		}
	}
	return job, nil
}

// UpdateProgress marks the job running and raises its progress. Terminal
// rows are left untouched.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress, rows int) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = 'running',
	progress = GREATEST(progress, $2),
	rows_exported = $3,
	started_at = COALESCE(started_at, $4)
WHERE id = $1 AND status NOT IN ('succeeded','failed','canceled')`, s.table)
	tag, err := s.db.Exec(ctx, query, jobID, export.ClampProgress(progress), rows, s.now())
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ensureExists(ctx, jobID)
	}
	return nil
}

// FinishJob records a terminal status. A row that already finished is left
// untouched and reported with backend.ErrJobFinished.
func (s *JobStore) FinishJob(ctx context.Context, job backend.Job) error {
	if !job.Status.Terminal() {
		return fmt.Errorf("finish %s: status %q is not terminal", job.ID, job.Status)
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	error_text = $3,
	artifact_key = $4,
	download_url = $5,
	rows_exported = GREATEST(rows_exported, $6),
	progress = CASE WHEN $2 = 'succeeded' THEN 100 ELSE progress END,
	finished_at = $7
WHERE id = $1 AND status NOT IN ('succeeded','failed','canceled')`, s.table)
	tag, err := s.db.Exec(ctx, query,
		job.ID, string(job.Status), job.ErrorText, job.ArtifactKey, job.DownloadURL, job.Rows, s.now())
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.ensureExists(ctx, job.ID); err != nil {
			return err
		}
		return fmt.Errorf("finish %s as %s: %w", job.ID, job.Status, backend.ErrJobFinished)
	}
	return nil
}

func (s *JobStore) ensureExists(ctx context.Context, jobID string) error {
	var one int
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", s.table), jobID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update %s: %w", jobID, backend.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup job: %w", err)
	}
	return nil
}
