// Package outcome performs the kind-specific completion action for a
// terminal export result.
package outcome

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/logging"
	"github.com/JakeFAU/apilog-dashboard/internal/metrics"
)

// DefaultFileBase is the base name of saved export files.
const DefaultFileBase = "logs_export"

// Handler turns terminal results into a saved file, a retrieval link or a
// failure presentation.
type Handler struct {
	saver     export.FileSaver
	presenter export.Presenter
	fileBase  string
	logger    *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithFileBase overrides DefaultFileBase.
func WithFileBase(base string) Option {
	return func(h *Handler) {
		if base != "" {
			h.fileBase = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = logging.Named(logger, "outcome")
	}
}

// New builds a Handler.
func New(saver export.FileSaver, presenter export.Presenter, opts ...Option) *Handler {
	h := &Handler{
		saver:     saver,
		presenter: presenter,
		fileBase:  DefaultFileBase,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Filename returns the saved file name for kind.
func (h *Handler) Filename(kind export.Kind) string {
	return h.fileBase + kind.Extension()
}

// Fetch resolves the artifact of a succeeded result. File kinds download the
// bytes; the cloud kind takes the retrieval URL from the result. Fetch may
// block and does not touch presentation state.
func (h *Handler) Fetch(ctx context.Context, client export.JobClient, job export.Job, res export.Result) (export.Artifact, error) {
	if res.State != export.StateSucceeded {
		if res.Err != nil {
			return export.Artifact{}, res.Err
		}
		return export.Artifact{}, export.NewError(export.ErrJobFailed, job.Kind, job.ID, "", nil)
	}

	if !job.Kind.IsFile() {
		if res.DownloadURL == "" {
			return export.Artifact{}, export.NewError(export.ErrJobFailed, job.Kind, job.ID,
				"completed without a download url", nil)
		}
		return export.Artifact{URL: res.DownloadURL}, nil
	}

	data, err := client.Download(ctx, job.ID)
	if err != nil {
		if export.Classify(err) == nil {
			err = export.NewError(export.ErrDownload, job.Kind, job.ID, "", err)
		}
		return export.Artifact{}, err
	}
	return export.Artifact{
		Data:     data,
		Filename: h.Filename(job.Kind),
		MIMEType: job.Kind.MIMEType(),
	}, nil
}

// Result is what Deliver did with an outcome.
type Result struct {
	Job      export.Job
	Link     string
	Location string
}

// Deliver performs the completion action and presents it. A non-nil err, or a
// save failure, yields the failure presentation and a Failed job. The cloud
// kind returns the retrieval link for the caller to hold.
func (h *Handler) Deliver(ctx context.Context, job export.Job, artifact export.Artifact, err error) Result {
	fields := logging.JobFields(string(job.Kind), job.ID)

	if err == nil && job.Kind.IsFile() {
		var location string
		location, err = h.saver.Save(ctx, artifact.Filename, artifact.MIMEType, artifact.Data)
		if err == nil {
			job.State = export.StateSucceeded
			job.Progress = 100
			job.Artifact = &export.Artifact{Filename: artifact.Filename, MIMEType: artifact.MIMEType, URL: location}
			metrics.ObserveExportFinished(string(job.Kind), "saved")
			h.logger.Info("export saved", append(fields, zap.String("location", location), zap.Int("bytes", len(artifact.Data)))...)
			h.presenter.Saved(job, location)
			return Result{Job: job, Location: location}
		}
		err = export.NewError(export.ErrDownload, job.Kind, job.ID, "save failed", err)
	}

	if err == nil {
		job.State = export.StateSucceeded
		job.Progress = 100
		job.Artifact = &export.Artifact{URL: artifact.URL}
		metrics.ObserveExportFinished(string(job.Kind), "link")
		h.logger.Info("export link ready", fields...)
		h.presenter.LinkReady(job, artifact.URL)
		return Result{Job: job, Link: artifact.URL}
	}

	job.State = export.StateFailed
	job.Err = err
	metrics.ObserveExportFinished(string(job.Kind), outcomeLabel(err))
	h.logger.Warn("export failed", append(fields, zap.Error(err))...)
	h.presenter.Failed(job, err)
	return Result{Job: job}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, export.ErrStart):
		return "start_error"
	case errors.Is(err, export.ErrPoll):
		return "poll_error"
	case errors.Is(err, export.ErrDownload):
		return "download_error"
	default:
		return "job_failed"
	}
}
