package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	filters := export.FilterSet{export.FilterMethod: "GET"}
	job := backend.Job{ID: "job-1", Kind: export.KindCSVFile, Filters: filters}

	require.NoError(t, store.CreateJob(ctx, job))
	require.ErrorIs(t, store.CreateJob(ctx, job), backend.ErrJobExists)
	filters[export.FilterMethod] = "POST"

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, backend.JobStatusQueued, got.Status)
	require.Equal(t, "GET", got.Filters[export.FilterMethod])

	require.NoError(t, store.UpdateProgress(ctx, job.ID, 60, 120))
	require.NoError(t, store.UpdateProgress(ctx, job.ID, 40, 130))
	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, backend.JobStatusRunning, got.Status)
	require.Equal(t, 60, got.Progress)
	require.Equal(t, 130, got.Rows)
	require.NotNil(t, got.Started)

	require.NoError(t, store.FinishJob(ctx, backend.Job{
		ID:          job.ID,
		Status:      backend.JobStatusSucceeded,
		ArtifactKey: "exports/job-1.csv",
	}))
	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, backend.JobStatusSucceeded, final.Status)
	require.Equal(t, 100, final.Progress)
	require.Equal(t, "exports/job-1.csv", final.ArtifactKey)
	require.NotNil(t, final.Finished)
}

func TestJobStoreTerminalIsSticky(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, backend.Job{ID: "job-1"}))
	require.NoError(t, store.FinishJob(ctx, backend.Job{ID: "job-1", Status: backend.JobStatusCanceled}))
	require.ErrorIs(t, store.FinishJob(ctx, backend.Job{ID: "job-1", Status: backend.JobStatusSucceeded}), backend.ErrJobFinished)
	require.NoError(t, store.UpdateProgress(ctx, "job-1", 90, 10))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, backend.JobStatusCanceled, got.Status)
	require.Zero(t, got.Progress)
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, backend.ErrJobNotFound)
	require.ErrorIs(t, store.UpdateProgress(context.Background(), "missing", 1, 1), backend.ErrJobNotFound)
	require.Error(t, store.FinishJob(context.Background(), backend.Job{ID: "missing", Status: backend.JobStatusFailed}))
}
