package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/apilog-dashboard/internal/eventloop"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

type scriptedClient struct {
	mu      sync.Mutex
	reports []export.StatusReport
	errs    []error
	calls   int
	gate    chan struct{}
}

func (c *scriptedClient) Start(context.Context, export.FilterSet) (string, error) { return "", nil }
func (c *scriptedClient) Download(context.Context, string) ([]byte, error)        { return nil, nil }
func (c *scriptedClient) Cancel(context.Context, string) error                    { return nil }

func (c *scriptedClient) Status(ctx context.Context, _ string) (export.StatusReport, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.reports) {
		i = len(c.reports) - 1
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return c.reports[i], err
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recorder struct {
	mu       sync.Mutex
	progress []int
	outcomes []export.Result
}

func (r *recorder) onProgress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) onOutcome(res export.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, res)
}

func (r *recorder) snapshot() ([]int, []export.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress...), append([]export.Result(nil), r.outcomes...)
}

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New(nil)
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func begin(t *testing.T, l *eventloop.Loop, p *Poller, rec *recorder) {
	t.Helper()
	var err error
	require.NoError(t, l.Do(context.Background(), func() {
		err = p.Begin("job-1", rec.onProgress, rec.onOutcome)
	}))
	require.NoError(t, err)
}

func waitOutcome(t *testing.T, rec *recorder) export.Result {
	t.Helper()
	require.Eventually(t, func() bool {
		_, outcomes := rec.snapshot()
		return len(outcomes) > 0
	}, time.Second, time.Millisecond)
	_, outcomes := rec.snapshot()
	return outcomes[0]
}

func TestPollerRunningThenCompleted(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{reports: []export.StatusReport{
		{Progress: 40, Status: export.StatusRunning},
		{Progress: 100, Status: export.StatusCompleted},
	}}
	p := New(client, l, WithInterval(time.Millisecond), WithKind(export.KindJSONFile))
	rec := &recorder{}
	begin(t, l, p, rec)

	res := waitOutcome(t, rec)
	require.Equal(t, export.StateSucceeded, res.State)
	require.Equal(t, 100, res.Progress)
	require.Equal(t, "job-1", res.JobID)
	require.NoError(t, res.Err)
	require.Equal(t, Stopped, p.State())

	time.Sleep(10 * time.Millisecond)
	progress, outcomes := rec.snapshot()
	require.Equal(t, []int{40}, progress)
	require.Len(t, outcomes, 1)
	require.Equal(t, 2, client.Calls())
}

func TestPollerBackendError(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{reports: []export.StatusReport{{Status: export.StatusError, Error: "disk full"}}}
	p := New(client, l, WithInterval(time.Millisecond), WithKind(export.KindCSVFile))
	rec := &recorder{}
	begin(t, l, p, rec)

	res := waitOutcome(t, rec)
	require.Equal(t, export.StateFailed, res.State)
	require.ErrorIs(t, res.Err, export.ErrJobFailed)
	require.Contains(t, res.Err.Error(), "disk full")
}

func TestPollerTransportFailureIsFatal(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{
		reports: []export.StatusReport{{}},
		errs:    []error{errors.New("connection reset")},
	}
	p := New(client, l, WithInterval(time.Millisecond))
	rec := &recorder{}
	begin(t, l, p, rec)

	res := waitOutcome(t, rec)
	require.Equal(t, export.StateFailed, res.State)
	require.ErrorIs(t, res.Err, export.ErrPoll)

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, client.Calls())
}

func TestPollerUnknownStatusIsPollError(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{reports: []export.StatusReport{{Status: "queued"}}}
	p := New(client, l, WithInterval(time.Millisecond))
	rec := &recorder{}
	begin(t, l, p, rec)

	res := waitOutcome(t, rec)
	require.ErrorIs(t, res.Err, export.ErrPoll)
}

func TestPollerProgressIsClampedAndMonotonic(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{reports: []export.StatusReport{
		{Progress: -5, Status: export.StatusRunning},
		{Progress: 30, Status: export.StatusRunning},
		{Progress: 20, Status: export.StatusRunning},
		{Progress: 140, Status: export.StatusRunning},
		{Progress: 90, Status: export.StatusCompleted},
	}}
	p := New(client, l, WithInterval(time.Millisecond))
	rec := &recorder{}
	begin(t, l, p, rec)

	res := waitOutcome(t, rec)
	require.Equal(t, 100, res.Progress)
	progress, _ := rec.snapshot()
	require.Equal(t, []int{0, 30, 100}, progress)
}

func TestPollerCancelSuppressesInFlightResponse(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	gate := make(chan struct{})
	client := &scriptedClient{
		reports: []export.StatusReport{{Progress: 100, Status: export.StatusCompleted}},
		gate:    gate,
	}
	p := New(client, l, WithInterval(time.Millisecond))
	rec := &recorder{}
	begin(t, l, p, rec)

	// Let the first tick fire and block inside Status.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), p.Cancel))
	close(gate)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), func() {}))
	progress, outcomes := rec.snapshot()
	require.Empty(t, progress)
	require.Empty(t, outcomes)
	require.Equal(t, Stopped, p.State())
}

func TestPollerIsSingleUse(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	client := &scriptedClient{reports: []export.StatusReport{{Status: export.StatusRunning}}}
	p := New(client, l, WithInterval(time.Hour))
	require.Equal(t, Idle, p.State())

	rec := &recorder{}
	begin(t, l, p, rec)
	require.Equal(t, Polling, p.State())

	var err error
	require.NoError(t, l.Do(context.Background(), func() {
		err = p.Begin("job-2", nil, nil)
		p.Cancel()
		p.Cancel()
	}))
	require.ErrorIs(t, err, ErrAlreadyStarted)
	require.Equal(t, Stopped, p.State())
	require.Equal(t, 0, client.Calls())
}

func TestCancelBeforeBegin(t *testing.T) {
	t.Parallel()

	p := New(&scriptedClient{}, newLoop(t))
	p.Cancel()
	require.Equal(t, Stopped, p.State())
	require.ErrorIs(t, p.Begin("job", nil, nil), ErrAlreadyStarted)
}

// droppingExecutor accepts every closure and never runs it, like a loop that
// shut down between accepting a report and running it.
type droppingExecutor struct {
	posted chan func()
	done   chan struct{}
}

func (e *droppingExecutor) Post(fn func()) bool {
	e.posted <- fn
	return true
}

func (e *droppingExecutor) Done() <-chan struct{} { return e.done }

func TestPollerEndsWhenExecutorDropsReport(t *testing.T) {
	t.Parallel()

	exec := &droppingExecutor{posted: make(chan func(), 1), done: make(chan struct{})}
	client := &scriptedClient{reports: []export.StatusReport{{Progress: 10, Status: export.StatusRunning}}}
	p := New(client, exec, WithInterval(time.Millisecond))
	rec := &recorder{}
	require.NoError(t, p.Begin("job-1", rec.onProgress, rec.onOutcome))

	select {
	case <-exec.posted:
	case <-time.After(time.Second):
		t.Fatal("status report was never posted")
	}
	close(exec.done)

	select {
	case <-p.Exited():
	case <-time.After(time.Second):
		t.Fatal("poll loop kept waiting on a dropped report")
	}
	require.Equal(t, 1, client.Calls())
	progress, outcomes := rec.snapshot()
	require.Empty(t, progress)
	require.Empty(t, outcomes)
}

func TestPollerStopsWhenLoopCloses(t *testing.T) {
	t.Parallel()

	l := eventloop.New(nil)
	client := &scriptedClient{reports: []export.StatusReport{{Status: export.StatusRunning}}}
	p := New(client, l, WithInterval(time.Millisecond))
	rec := &recorder{}
	begin(t, l, p, rec)

	require.Eventually(t, func() bool { return client.Calls() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, l.Close(context.Background()))

	select {
	case <-p.Exited():
	case <-time.After(time.Second):
		t.Fatal("poll loop outlived its event loop")
	}
}

func TestPollerParentCancelStopsLoop(t *testing.T) {
	t.Parallel()

	l := newLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{reports: []export.StatusReport{{Status: export.StatusRunning}}}
	p := New(client, l, WithInterval(time.Hour), WithParent(ctx))
	rec := &recorder{}
	begin(t, l, p, rec)

	cancel()
	select {
	case <-p.Exited():
	case <-time.After(time.Second):
		t.Fatal("poll loop ignored parent cancellation")
	}
	require.Equal(t, 0, client.Calls())
}

func TestExitedBeforeBegin(t *testing.T) {
	t.Parallel()

	p := New(&scriptedClient{}, newLoop(t))
	p.Cancel()
	p.Cancel()
	select {
	case <-p.Exited():
	default:
		t.Fatal("cancelled idle poller should report exited")
	}
}
