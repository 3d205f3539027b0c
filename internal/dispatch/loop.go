// Package dispatch runs work on one dedicated goroutine.
//
// The D-Bus connection used by the bridge is owned by a single Loop. Any
// goroutine may submit work with Invoke and block until the loop has run it,
// so calls on the connection never overlap.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrNotRunning is returned when work is submitted to a loop that has not been
// started or has been stopped.
var ErrNotRunning = errors.New("dispatch loop is not running")

// Work is a unit of work executed on the loop goroutine.
type Work func(ctx context.Context) error

type request struct {
	ctx  context.Context
	work Work
	post func()
	resp chan error
}

// Loop is a single-consumer work queue.
type Loop struct {
	logger   *zap.Logger
	requests chan request

	running atomic.Bool
	closing chan struct{}
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		logger:   logger,
		requests: make(chan request),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the owning goroutine. Calling Start more than once has no effect.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.running.Store(true)
		go l.run()
		l.logger.Debug("Dispatch loop started")
	})
}

// Stop tears the loop down and waits for the work in progress to finish.
// Pending and future submissions fail with ErrNotRunning.
func (l *Loop) Stop() {
	l.closeOnce.Do(func() {
		l.running.Store(false)
		close(l.closing)
	})
	l.startOnce.Do(func() { close(l.done) })
	<-l.done
	l.logger.Debug("Dispatch loop stopped")
}

// Running reports whether the loop accepts work.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Invoke runs work on the loop and returns its result. The caller blocks
// until work has completed. Work running on the loop must not call Invoke.
func (l *Loop) Invoke(ctx context.Context, work Work) error {
	if !l.running.Load() {
		return ErrNotRunning
	}

	req := request{ctx: ctx, work: work, resp: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.closing:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop owns req now and always answers.
	return <-req.resp
}

// Post schedules fn on the loop without waiting for it to run. It blocks only
// until the loop accepts the work.
func (l *Loop) Post(fn func()) error {
	if !l.running.Load() {
		return ErrNotRunning
	}
	select {
	case l.requests <- request{post: fn}:
		return nil
	case <-l.closing:
		return ErrNotRunning
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.closing:
			return
		case req := <-l.requests:
			l.execute(req)
		}
	}
}

func (l *Loop) execute(req request) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("Dispatch work panicked", zap.Any("panic", r))
				err = fmt.Errorf("dispatch work panicked: %v", r)
			}
		}()
		if req.post != nil {
			req.post()
			return
		}
		err = req.work(req.ctx)
	}()
	if req.resp != nil {
		req.resp <- err
	}
}
