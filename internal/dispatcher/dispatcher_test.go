package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
)

type countingRunner struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context) {
	r.started.Add(1)
	<-ctx.Done()
	r.stopped.Add(1)
}

func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	a, b := &countingRunner{}, &countingRunner{}
	dispatch := New(nil, []Runner{a, b})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for a.started.Load() == 0 || b.started.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("workers did not start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
	if a.stopped.Load() != 1 || b.stopped.Load() != 1 {
		t.Fatal("expected every worker to return before Run")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), backend.QueueItem{JobID: "job"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, backend.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (backend.QueueItem, error) {
	return backend.QueueItem{}, nil
}
