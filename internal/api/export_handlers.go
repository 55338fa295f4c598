package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/id/uuid"
	"github.com/JakeFAU/apilog-dashboard/internal/logging"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

const (
	userHeader     = "x-user-id"
	enqueueTimeout = 5 * time.Second
	exportFileBase = "logs_export"
)

type submitResponse struct {
	JobID string `json:"jobId"`
}

type cancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

func (s *Server) submitExport(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	filters := filtersFromQuery(r)
	if _, err := logs.ParseCriteria(filters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate job id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create export")
		return
	}
	now := s.clock.Now()
	job := backend.Job{
		ID:        jobID,
		Kind:      kind,
		UserID:    r.Header.Get(userHeader),
		Status:    backend.JobStatusQueued,
		Filters:   filters,
		Submitted: now,
	}
	log := s.logger.With(logging.JobFields(string(kind), jobID)...)
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		log.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create export")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	item := backend.QueueItem{
		JobID:     jobID,
		Kind:      kind,
		Filters:   filters,
		Attempt:   1,
		Submitted: now.Unix(),
		Trace:     telemetry.Inject(r.Context()),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		log.Error("enqueue job failed", zap.Error(err))
		s.abandon(job, "queue unavailable")
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "export queue is unavailable")
		return
	}
	log.Info("export accepted", zap.Any("filters", filters))
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID})
}

func (s *Server) getExportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job.Report())
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !job.Kind.IsFile() {
		writeError(w, http.StatusBadRequest, "cloud exports are retrieved through their download URL")
		return
	}
	if job.Status != backend.JobStatusSucceeded {
		writeError(w, http.StatusConflict, fmt.Sprintf("export is %s", job.Status))
		return
	}
	data, err := s.files.GetObject(r.Context(), job.ArtifactKey)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			writeError(w, http.StatusGone, "export artifact is no longer available")
			return
		}
		s.logger.Error("read artifact failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read export")
		return
	}
	w.Header().Set("Content-Type", job.Kind.MIMEType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, exportFileBase, job.Kind.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write artifact failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Server) cancelExport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		job.Status = backend.JobStatusCanceled
		job.ErrorText = "canceled via API"
		err := s.jobStore.FinishJob(r.Context(), job)
		switch {
		case err == nil:
			s.logger.Info("export canceled", logging.JobFields(string(job.Kind), job.ID)...)
		case errors.Is(err, backend.ErrJobFinished):
			s.logger.Info("export finished before cancel", logging.JobFields(string(job.Kind), job.ID)...)
		default:
			s.logger.Error("cancel job failed", zap.String("job_id", job.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to cancel export")
			return
		}
	}
	current, err := s.jobStore.GetJob(r.Context(), job.ID)
	if err != nil {
		current = job
	}
	writeJSON(w, http.StatusOK, cancelResponse{JobID: job.ID, Status: string(current.Status)})
}

// loadJob resolves the {kind}/{job_id} pair. Jobs of another kind or
// another user read as missing.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (backend.Job, bool) {
	kind, ok := parseKind(w, r)
	if !ok {
		return backend.Job{}, false
	}
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return backend.Job{}, false
	}
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, backend.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return backend.Job{}, false
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return backend.Job{}, false
	}
	if job.Kind != kind {
		writeError(w, http.StatusNotFound, "job not found")
		return backend.Job{}, false
	}
	if job.UserID != "" && job.UserID != r.Header.Get(userHeader) {
		writeError(w, http.StatusNotFound, "job not found")
		return backend.Job{}, false
	}
	return job, true
}

// abandon marks a job that never reached the queue as failed.
func (s *Server) abandon(job backend.Job, reason string) {
	job.Status = backend.JobStatusFailed
	job.ErrorText = reason
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := s.jobStore.FinishJob(ctx, job); err != nil {
		s.logger.Warn("mark abandoned job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func parseKind(w http.ResponseWriter, r *http.Request) (export.Kind, bool) {
	kind, err := export.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func filtersFromQuery(r *http.Request) export.FilterSet {
	q := r.URL.Query()
	filters := export.FilterSet{}
	for _, key := range export.FilterKeys() {
		if v := q.Get(key); v != "" {
			filters[key] = v
		}
	}
	return filters.Clone()
}
