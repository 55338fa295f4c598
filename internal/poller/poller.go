// Package poller drives one export job's status checks until the job reaches
// a terminal state or the loop is cancelled.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/logging"
	"github.com/JakeFAU/apilog-dashboard/internal/metrics"
)

// DefaultInterval is the delay between status checks.
const DefaultInterval = time.Second

// State is the lifecycle state of a Poller.
type State int

// Poller states.
const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted is returned by Begin on a Poller that left Idle.
var ErrAlreadyStarted = errors.New("poller already started")

// Poller checks one job's status at a fixed interval. Status calls run on a
// private goroutine; every state change and every callback runs on the
// executor, so Cancel called from the executor suppresses any response still
// in flight. A Poller is single-use.
type Poller struct {
	client   export.JobClient
	exec     export.Executor
	interval time.Duration
	kind     export.Kind
	logger   *zap.Logger

	// Touched only on the executor, except state which State() also reads.
	mu           sync.Mutex
	state        State
	jobID        string
	lastProgress int
	onProgress   func(int)
	onOutcome    func(export.Result)

	parent context.Context
	cancel context.CancelFunc
	exited chan struct{}
}

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithKind labels logs and metrics with the export kind.
func WithKind(kind export.Kind) Option {
	return func(p *Poller) {
		p.kind = kind
	}
}

// WithParent derives the poll loop's context from ctx, so status calls carry
// its values and trace. Canceling ctx stops polling without an outcome.
func WithParent(ctx context.Context) Option {
	return func(p *Poller) {
		if ctx != nil {
			p.parent = ctx
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		p.logger = logging.Named(logger, "poller")
	}
}

// New builds an Idle Poller.
func New(client export.JobClient, exec export.Executor, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		exec:     exec,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		parent:   context.Background(),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin moves Idle to Polling and schedules status checks. It does not block.
// onProgress receives clamped, non-decreasing percentages; onOutcome fires at
// most once. Both run on the executor. Begin must be called on the executor.
func (p *Poller) Begin(jobID string, onProgress func(int), onOutcome func(export.Result)) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.state = Polling
	p.mu.Unlock()

	p.jobID = jobID
	p.onProgress = onProgress
	p.onOutcome = onOutcome

	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.logger.Debug("poll loop started", logging.JobFields(string(p.kind), jobID)...)
	go p.run(ctx)
	return nil
}

// Cancel stops future checks and suppresses the result of any check in
// flight. It never invokes onOutcome and is idempotent. Cancel must be called
// on the executor.
func (p *Poller) Cancel() {
	p.mu.Lock()
	wasPolling := p.state == Polling
	wasIdle := p.state == Idle
	p.state = Stopped
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if wasIdle {
		close(p.exited)
	}
	if wasPolling {
		p.logger.Debug("poll loop cancelled", logging.JobFields(string(p.kind), p.jobID)...)
	}
}

// Exited is closed once no poll loop goroutine remains: after the loop
// returns, or immediately for a Poller cancelled before Begin.
func (p *Poller) Exited() <-chan struct{} {
	return p.exited
}

// run waits one interval, checks status, hands the report to the executor and
// waits for it to be handled before the next tick. At most one check is ever
// in flight. A report the executor accepted but dropped on shutdown ends the
// loop.
func (p *Poller) run(ctx context.Context) {
	defer close(p.exited)
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.exec.Done():
			return
		case <-timer.C:
		}

		report, err := p.client.Status(ctx, p.jobID)

		handled := make(chan bool, 1)
		if !p.exec.Post(func() { handled <- p.deliver(report, err) }) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-p.exec.Done():
			p.logger.Debug("executor stopped, ending poll loop", logging.JobFields(string(p.kind), p.jobID)...)
			return
		case keepGoing := <-handled:
			if !keepGoing {
				return
			}
		}
		timer.Reset(p.interval)
	}
}

// deliver runs on the executor and reports whether polling continues.
func (p *Poller) deliver(report export.StatusReport, err error) bool {
	if p.State() != Polling {
		return false
	}
	fields := logging.JobFields(string(p.kind), p.jobID)

	if err != nil {
		metrics.ObservePoll(string(p.kind), "error")
		if export.Classify(err) == nil {
			err = export.NewError(export.ErrPoll, p.kind, p.jobID, "", err)
		}
		p.logger.Warn("status check failed", append(fields, zap.Error(err))...)
		p.finish(export.Result{JobID: p.jobID, State: export.StateFailed, Progress: p.lastProgress, Err: err})
		return false
	}

	state, serr := report.State()
	if serr != nil {
		metrics.ObservePoll(string(p.kind), "invalid")
		err := export.NewError(export.ErrPoll, p.kind, p.jobID, "", serr)
		p.logger.Warn("status check returned unknown status", append(fields, zap.Error(err))...)
		p.finish(export.Result{JobID: p.jobID, State: export.StateFailed, Progress: p.lastProgress, Err: err})
		return false
	}
	metrics.ObservePoll(string(p.kind), report.Status)

	progress := export.ClampProgress(report.Progress)
	switch state {
	case export.StateRunning:
		if progress < p.lastProgress {
			p.logger.Debug("ignoring progress regression",
				append(fields, zap.Int("reported", progress), zap.Int("last", p.lastProgress))...)
			return true
		}
		p.lastProgress = progress
		if p.onProgress != nil {
			p.onProgress(progress)
		}
		return true
	case export.StateSucceeded:
		if progress < p.lastProgress {
			progress = p.lastProgress
		}
		p.finish(export.Result{
			JobID:       p.jobID,
			State:       export.StateSucceeded,
			Progress:    progress,
			DownloadURL: report.DownloadURL,
		})
		return false
	default:
		msg := report.Error
		if msg == "" {
			msg = "backend reported an error"
		}
		p.finish(export.Result{
			JobID:    p.jobID,
			State:    export.StateFailed,
			Progress: p.lastProgress,
			Err:      export.NewError(export.ErrJobFailed, p.kind, p.jobID, msg, nil),
		})
		return false
	}
}

// finish moves to Stopped and fires onOutcome once.
func (p *Poller) finish(res export.Result) {
	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()
	p.cancel()

	p.logger.Debug("poll loop finished",
		append(logging.JobFields(string(p.kind), p.jobID), zap.String("state", string(res.State)))...)
	if p.onOutcome != nil {
		p.onOutcome(res)
	}
}
