package backend

import (
	"context"
	"io"
	"time"
)

// JobStore persists export job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateProgress(ctx context.Context, jobID string, progress, rows int) error
	// FinishJob records a terminal status. Finishing a job that is already
	// terminal leaves it untouched and returns ErrJobFinished.
	FinishJob(ctx context.Context, job Job) error
}

// BlobStore keeps export artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// LinkSigner issues retrieval URLs for stored objects.
type LinkSigner interface {
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// CloudStore is the destination of cloud exports.
type CloudStore interface {
	BlobStore
	LinkSigner
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for export jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
