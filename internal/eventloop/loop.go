// Package eventloop provides a single goroutine that runs posted closures one
// at a time, in order. State touched only from inside those closures needs no
// locking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("event loop closed")

// Loop drains an unbounded FIFO of closures on one goroutine. Post never
// blocks, so closures may post follow-up work to the same Loop.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

// New starts a Loop. The returned Loop is immediately ready to accept work.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// Post enqueues fn and reports whether it was accepted.
func (l *Loop) Post(fn func()) bool {
	if l == nil || fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Done is closed when the loop goroutine has exited. Closures still queued at
// that point never run.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from inside a closure running on the same Loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-l.doneCh:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return fmt.Errorf("event loop wait: %w", ctx.Err())
	}
}

// Close stops accepting work, lets the closure in progress finish, drops the
// rest, and waits for the goroutine to exit.
func (l *Loop) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		if dropped > 0 {
			l.logger.Debug("event loop closed with pending work", zap.Int("dropped", dropped))
		}
		close(l.stopCh)
	})
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event loop close wait: %w", ctx.Err())
	}
}

func (l *Loop) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wake:
			for {
				fn, ok := l.next()
				if !ok {
					break
				}
				l.exec(fn)
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}
