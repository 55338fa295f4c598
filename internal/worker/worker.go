// Package worker implements the export job execution loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/logging"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/metrics"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

// errCanceled stops a job whose row was canceled while it ran.
var errCanceled = errors.New("export canceled")

// Progress reserved for encoding and upload once all rows are read.
const readShare = 90

// Config controls Worker behavior.
type Config struct {
	PageSize       int
	ArtifactPrefix string
	SignedURLTTL   time.Duration
	Topic          string
	// PageDelay pauses between pages so progress is observable on small
	// datasets.
	PageDelay         time.Duration
	MaxUploadAttempts int
	RetryBackoff      time.Duration
}

// Worker consumes queue items and writes export artifacts.
type Worker struct {
	queue     backend.Queue
	jobStore  backend.JobStore
	logStore  logs.Store
	files     backend.BlobStore
	cloud     backend.CloudStore
	publisher backend.Publisher
	clock     backend.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue backend.Queue,
	jobStore backend.JobStore,
	logStore logs.Store,
	files backend.BlobStore,
	cloud backend.CloudStore,
	publisher backend.Publisher,
	clock backend.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	if cfg.MaxUploadAttempts <= 0 {
		cfg.MaxUploadAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		logStore:  logStore,
		files:     files,
		cloud:     cloud,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if !sleepCtx(ctx, w.cfg.RetryBackoff) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued job", logging.JobFields(string(item.Kind), item.JobID)...)
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item backend.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := telemetry.Tracer().Start(telemetry.Extract(ctx, item.Trace), "export.job",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("export.job_id", item.JobID),
			attribute.String("export.kind", string(item.Kind)),
		),
	)
	defer span.End()

	log := w.logger.With(logging.JobFields(string(item.Kind), item.JobID)...)
	if sc := span.SpanContext(); sc.IsValid() {
		log = log.With(zap.String("trace_id", sc.TraceID().String()))
	}
	job, err := w.jobStore.GetJob(ctx, item.JobID)
	if err != nil {
		log.Error("load job failed", zap.Error(err))
		span.SetStatus(codes.Error, "load job failed")
		return
	}
	if job.Status.Terminal() {
		log.Info("skipping finished job", zap.String("status", string(job.Status)))
		return
	}

	rows, key, url, err := w.export(ctx, job)
	switch {
	case errors.Is(err, errCanceled):
		log.Info("export canceled while running", zap.Int("rows", rows))
		metrics.ObserveBackendJob(string(job.Kind), string(backend.JobStatusCanceled))
		return
	case err != nil:
		if ctx.Err() != nil {
			log.Warn("export interrupted by shutdown", zap.Error(err))
			w.finish(context.WithoutCancel(ctx), log, job, backend.JobStatusFailed, rows, "", "", "export interrupted")
			return
		}
		log.Error("export failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		w.finish(ctx, log, job, backend.JobStatusFailed, rows, "", "", err.Error())
		return
	}
	log.Info("export finished", zap.Int("rows", rows), zap.String("artifact", key))
	span.SetAttributes(attribute.Int("export.rows", rows))
	metrics.ObserveRowsExported(string(job.Kind), rows)
	w.finish(ctx, log, job, backend.JobStatusSucceeded, rows, key, url, "")
}

func (w *Worker) export(ctx context.Context, job backend.Job) (int, string, string, error) {
	if err := w.jobStore.UpdateProgress(ctx, job.ID, 0, 0); err != nil {
		return 0, "", "", fmt.Errorf("mark running: %w", err)
	}
	entries, err := w.collect(ctx, job)
	if err != nil {
		return len(entries), "", "", err
	}

	data, err := Encode(job.Kind, entries)
	if err != nil {
		return len(entries), "", "", err
	}
	if err := w.checkCanceled(ctx, job.ID); err != nil {
		return len(entries), "", "", err
	}

	key := w.artifactKey(job.ID, job.Kind.Extension())
	store := w.files
	if !job.Kind.IsFile() {
		store = w.cloud
	}
	if store == nil {
		return len(entries), "", "", fmt.Errorf("no artifact store configured for %s exports", job.Kind)
	}
	if _, err := w.upload(ctx, store, key, job.Kind.MIMEType(), data); err != nil {
		return len(entries), "", "", err
	}

	var url string
	if !job.Kind.IsFile() {
		url, err = w.cloud.SignedURL(ctx, key, w.cfg.SignedURLTTL)
		if err != nil {
			return len(entries), "", "", fmt.Errorf("sign url: %w", err)
		}
	}
	return len(entries), key, url, nil
}

// collect reads every matching entry page by page, oldest first.
func (w *Worker) collect(ctx context.Context, job backend.Job) ([]logs.Entry, error) {
	var (
		entries []logs.Entry
		total   = -1
	)
	for page := 1; ; page++ {
		res, err := w.logStore.Query(ctx, logs.Query{
			Page:      page,
			Limit:     w.cfg.PageSize,
			SortBy:    logs.SortTimestamp,
			SortOrder: "asc",
			Filters:   job.Filters,
		})
		if err != nil {
			return entries, fmt.Errorf("query logs: %w", err)
		}
		if total < 0 {
			total = res.Total
		}
		entries = append(entries, res.Logs...)
		done := len(res.Logs) == 0 || len(entries) >= total

		if err := w.checkCanceled(ctx, job.ID); err != nil {
			return entries, err
		}
		if err := w.jobStore.UpdateProgress(ctx, job.ID, readProgress(len(entries), total), len(entries)); err != nil {
			return entries, fmt.Errorf("update progress: %w", err)
		}
		if done {
			return entries, nil
		}
		if !sleepCtx(ctx, w.cfg.PageDelay) {
			return entries, fmt.Errorf("export interrupted: %w", ctx.Err())
		}
	}
}

func (w *Worker) upload(ctx context.Context, store backend.BlobStore, key, contentType string, data []byte) (string, error) {
	var uri string
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.RetryBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.cfg.MaxUploadAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		uri, err = store.PutObject(ctx, key, contentType, bytes.NewReader(data))
		if err != nil {
			w.logger.Warn("artifact upload failed", zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, retry)
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return uri, nil
}

func (w *Worker) checkCanceled(ctx context.Context, jobID string) error {
	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if job.Status == backend.JobStatusCanceled {
		return errCanceled
	}
	return nil
}

func (w *Worker) finish(
	ctx context.Context,
	log *zap.Logger,
	job backend.Job,
	status backend.JobStatus,
	rows int,
	key, url, errText string,
) {
	job.Status = status
	job.Rows = rows
	job.ArtifactKey = key
	job.DownloadURL = url
	job.ErrorText = errText
	if err := w.jobStore.FinishJob(ctx, job); err != nil {
		if errors.Is(err, backend.ErrJobFinished) {
			log.Info("job finished elsewhere, dropping result", zap.String("status", string(status)))
			return
		}
		log.Error("final job status update failed", zap.Error(err))
		return
	}
	metrics.ObserveBackendJob(string(job.Kind), string(status))

	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := backend.CompletionEvent{
		JobID:       job.ID,
		Kind:        string(job.Kind),
		UserID:      job.UserID,
		Status:      status,
		Rows:        rows,
		ArtifactKey: key,
		DownloadURL: url,
		ErrorText:   errText,
		FinishedAt:  w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		log.Warn("completion event publish failed", zap.Error(err))
	}
}

func (w *Worker) artifactKey(jobID, ext string) string {
	prefix := strings.Trim(w.cfg.ArtifactPrefix, "/")
	if prefix == "" {
		return jobID + ext
	}
	return prefix + "/" + jobID + ext
}

func readProgress(read, total int) int {
	if total <= 0 {
		return readShare
	}
	p := read * readShare / total
	if p > readShare {
		p = readShare
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
