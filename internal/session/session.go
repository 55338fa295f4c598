// Package session owns the single live export job of one tracking surface.
//
// All session state lives on one event loop. Public methods hop onto the loop
// and wait; backend calls run on their own goroutines and post their results
// back, tagged with the sequence number of the job that issued them. A result
// whose job is no longer the live one is dropped, which is what makes a
// superseded or cancelled job invisible.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/eventloop"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/logging"
	"github.com/JakeFAU/apilog-dashboard/internal/metrics"
	"github.com/JakeFAU/apilog-dashboard/internal/outcome"
	"github.com/JakeFAU/apilog-dashboard/internal/poller"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

// ErrNoLink is returned by OpenLink when no retrieval link is held.
var ErrNoLink = errors.New("no retrieval link available")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("session closed")

const backendCancelTimeout = 5 * time.Second

// Snapshot is the session's display state.
type Snapshot struct {
	Job      export.Job
	HasJob   bool
	Live     bool
	Progress int
	Link     string
	Filters  export.FilterSet
}

// Session serializes export requests. At most one job is live at a time.
type Session struct {
	clients   export.ClientSet
	handler   *outcome.Handler
	presenter export.Presenter
	loop      *eventloop.Loop
	interval  time.Duration
	logger    *zap.Logger

	ctx  context.Context
	stop context.CancelFunc
	bg   sync.WaitGroup

	// Loop-only state.
	seq      uint64
	current  *slot
	last     *export.Job
	progress int
	link     string
	filters  export.FilterSet
	closed   bool

	onPoller func(*poller.Poller)
}

type slot struct {
	seq    uint64
	job    export.Job
	client export.JobClient
	poller *poller.Poller
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
}

// Option customizes a Session.
type Option func(*Session)

// WithPollInterval sets the status check interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logging.Named(logger, "session")
	}
}

// New builds a Session and starts its event loop.
func New(clients export.ClientSet, handler *outcome.Handler, presenter export.Presenter, opts ...Option) *Session {
	s := &Session{
		clients:   clients,
		handler:   handler,
		presenter: presenter,
		interval:  poller.DefaultInterval,
		logger:    zap.NewNop(),
		filters:   export.FilterSet{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loop = eventloop.New(s.logger)
	s.ctx, s.stop = context.WithCancel(context.Background())
	return s
}

// Start retires any live job, resets the display state and starts a new
// export of kind with a snapshot of filters. It returns once the request is
// issued; progress and the outcome arrive through the Presenter. The job's
// backend calls continue the trace of ctx but outlive its cancellation.
func (s *Session) Start(ctx context.Context, kind export.Kind, filters export.FilterSet) error {
	var err error
	if derr := s.do(ctx, func() { err = s.start(ctx, kind, filters) }); derr != nil {
		return derr
	}
	return err
}

// CancelCurrent retires the live job, if any, and clears the display state.
// No outcome is presented for the retired job.
func (s *Session) CancelCurrent(ctx context.Context) error {
	return s.do(ctx, func() {
		s.retire("cancelled")
		s.progress = 0
		s.clearLink()
	})
}

// SetFilters records the filters for display and invalidates the retrieval
// link. A live cloud export is retired because its link would be stale; live
// file exports keep their snapshot and continue.
func (s *Session) SetFilters(ctx context.Context, filters export.FilterSet) error {
	return s.do(ctx, func() {
		s.filters = filters.Clone()
		s.clearLink()
		if s.current != nil && s.current.job.Kind == export.KindJSONToCloud {
			s.retire("filters changed")
			s.progress = 0
		}
	})
}

// OpenLink hands out the retrieval link and clears it. A link can be opened
// once.
func (s *Session) OpenLink(ctx context.Context) (string, error) {
	var link string
	if err := s.do(ctx, func() {
		link = s.link
		s.clearLink()
	}); err != nil {
		return "", err
	}
	if link == "" {
		return "", ErrNoLink
	}
	return link, nil
}

// Snapshot returns a copy of the display state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{Progress: s.progress, Link: s.link, Filters: s.filters.Clone()}
		switch {
		case s.current != nil:
			snap.Job, snap.HasJob, snap.Live = copyJob(s.current.job), true, true
		case s.last != nil:
			snap.Job, snap.HasJob = copyJob(*s.last), true
		}
	})
	return snap, err
}

// Close retires the live job, stops the event loop and waits for background
// backend cancels to finish.
func (s *Session) Close(ctx context.Context) error {
	if err := s.do(ctx, func() {
		s.retire("session closed")
		s.closed = true
	}); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	if err := s.loop.Close(ctx); err != nil {
		return fmt.Errorf("close session loop: %w", err)
	}
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.stop()
		return fmt.Errorf("wait for backend cancels: %w", ctx.Err())
	}
	s.stop()
	return nil
}

func (s *Session) do(ctx context.Context, fn func()) error {
	closed := false
	err := s.loop.Do(ctx, func() {
		if s.closed {
			closed = true
			return
		}
		fn()
	})
	if errors.Is(err, eventloop.ErrClosed) || closed {
		return ErrClosed
	}
	return err
}

func (s *Session) start(caller context.Context, kind export.Kind, filters export.FilterSet) error {
	client, err := s.clients.For(kind)
	if err != nil {
		return err
	}

	s.retire("superseded")
	s.progress = 0
	s.clearLink()

	s.seq++
	ctx, span := telemetry.Tracer().Start(
		trace.ContextWithSpanContext(s.ctx, trace.SpanContextFromContext(caller)),
		"export.session",
		trace.WithAttributes(attribute.String("export.kind", string(kind))),
	)
	ctx, cancel := context.WithCancel(ctx)
	cur := &slot{
		seq: s.seq,
		job: export.Job{
			Kind:      kind,
			State:     export.StateStarting,
			Filters:   filters.Clone(),
			StartedAt: time.Now(),
		},
		client: client,
		ctx:    ctx,
		cancel: cancel,
		span:   span,
	}
	s.current = cur
	metrics.ObserveExportStarted(string(kind))
	s.logger.Info("export requested", logging.JobFields(string(kind), "")...)

	seq, snapshot := cur.seq, cur.job.Filters
	go func() {
		id, err := client.Start(ctx, snapshot)
		s.loop.Post(func() { s.onStarted(seq, client, id, err) })
	}()
	return nil
}

func (s *Session) live(seq uint64) *slot {
	if s.current == nil || s.current.seq != seq {
		return nil
	}
	return s.current
}

func (s *Session) onStarted(seq uint64, client export.JobClient, id string, err error) {
	cur := s.live(seq)
	if cur == nil {
		if err == nil && id != "" {
			s.logger.Debug("discarding job started after it was retired", zap.String("job_id", id))
			s.cancelBackend(trace.SpanContext{}, client, id)
		}
		return
	}
	if err != nil {
		if export.Classify(err) == nil {
			err = export.NewError(export.ErrStart, cur.job.Kind, "", "", err)
		}
		s.deliver(cur, export.Artifact{}, err)
		return
	}

	cur.job.ID = id
	cur.job.State = export.StateRunning
	cur.span.SetAttributes(attribute.String("export.job_id", id))
	s.logger.Info("export running", logging.JobFields(string(cur.job.Kind), id)...)

	p := poller.New(cur.client, s.loop,
		poller.WithInterval(s.interval),
		poller.WithKind(cur.job.Kind),
		poller.WithLogger(s.logger),
		poller.WithParent(cur.ctx),
	)
	cur.poller = p
	if s.onPoller != nil {
		s.onPoller(p)
	}
	if err := p.Begin(id,
		func(progress int) { s.onProgress(seq, progress) },
		func(res export.Result) { s.onOutcome(seq, res) },
	); err != nil {
		s.deliver(cur, export.Artifact{}, export.NewError(export.ErrPoll, cur.job.Kind, id, "", err))
	}
}

func (s *Session) onProgress(seq uint64, progress int) {
	cur := s.live(seq)
	if cur == nil {
		return
	}
	cur.job.Progress = progress
	s.progress = progress
	s.presenter.Progress(copyJob(cur.job), progress)
}

func (s *Session) onOutcome(seq uint64, res export.Result) {
	cur := s.live(seq)
	if cur == nil {
		return
	}
	if res.Progress > cur.job.Progress {
		cur.job.Progress = res.Progress
		s.progress = res.Progress
		s.presenter.Progress(copyJob(cur.job), res.Progress)
	}
	if res.State != export.StateSucceeded {
		s.deliver(cur, export.Artifact{}, res.Err)
		return
	}

	job := copyJob(cur.job)
	go func() {
		artifact, err := s.handler.Fetch(cur.ctx, cur.client, job, res)
		s.loop.Post(func() {
			if live := s.live(seq); live != nil {
				s.deliver(live, artifact, err)
			}
		})
	}()
}

func (s *Session) deliver(cur *slot, artifact export.Artifact, err error) {
	out := s.handler.Deliver(cur.ctx, copyJob(cur.job), artifact, err)
	if out.Link != "" {
		s.link = out.Link
	}
	s.remember(out.Job)
	if err != nil {
		cur.span.RecordError(err)
		cur.span.SetStatus(codes.Error, "export failed")
	}
	cur.span.End()
	cur.cancel()
	s.current = nil
}

// retire drops the live job without presenting an outcome.
func (s *Session) retire(reason string) {
	cur := s.current
	if cur == nil {
		return
	}
	s.current = nil
	if cur.poller != nil {
		cur.poller.Cancel()
	}
	cur.cancel()
	cur.span.SetAttributes(attribute.String("export.retired", reason))
	cur.span.End()

	cur.job.State = export.StateCancelled
	s.remember(cur.job)
	metrics.ObserveExportSuperseded(string(cur.job.Kind))
	s.logger.Info("export retired",
		append(logging.JobFields(string(cur.job.Kind), cur.job.ID), zap.String("reason", reason))...)

	if cur.job.ID != "" {
		s.cancelBackend(trace.SpanContextFromContext(cur.ctx), cur.client, cur.job.ID)
	}
}

// cancelBackend asks the backend to abandon id without waiting for the answer.
func (s *Session) cancelBackend(sc trace.SpanContext, client export.JobClient, id string) {
	if client == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(trace.ContextWithSpanContext(s.ctx, sc), backendCancelTimeout)
		defer cancel()
		if err := client.Cancel(ctx, id); err != nil {
			s.logger.Warn("backend cancel failed", zap.String("job_id", id), zap.Error(err))
		}
	}()
}

func (s *Session) remember(job export.Job) {
	j := copyJob(job)
	s.last = &j
}

func (s *Session) clearLink() {
	if s.link == "" {
		return
	}
	s.link = ""
	s.presenter.LinkCleared()
}

func copyJob(j export.Job) export.Job {
	j.Filters = j.Filters.Clone()
	if j.Artifact != nil {
		a := *j.Artifact
		j.Artifact = &a
	}
	return j
}
