package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/medtrail/pkg/observability"
)

// ErrPoolClosed is returned when submitting to a pool that has shut down
var ErrPoolClosed = errors.New("worker pool shut down")

// ErrorHandler receives the error or recovered panic of a background task
type ErrorHandler func(taskName string, err error)

// SafeGo executes fn in a goroutine with a timeout and panic recovery.
// Errors and panics are logged and never propagate to the caller.
//
// Example:
//
//	SafeGo(ctx, logger, 5*time.Second, "cache warm", func(ctx context.Context) error {
//	    return cache.Warm(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go run(parentCtx, logger, timeout, taskName, fn, nil)
}

func run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string,
	fn func(context.Context) error, onErr ErrorHandler) {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	report := func(err error) {
		if logger != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
		if onErr != nil {
			onErr(taskName, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			report(observability.PanicError(r))
		}
	}()

	if err := fn(ctx); err != nil {
		report(err)
	}
}

// Group runs fire-and-forget tasks and lets shutdown wait for the ones in flight.
// Tasks are detached from the caller's cancellation but keep its values.
type Group struct {
	logger  *observability.Logger
	timeout time.Duration
	onErr   ErrorHandler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGroup creates a Group whose tasks each get timeout to finish.
// onErr may be nil.
func NewGroup(logger *observability.Logger, timeout time.Duration, onErr ErrorHandler) *Group {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Group{logger: logger, timeout: timeout, onErr: onErr}
}

// Go starts fn in the background. After Wait has begun, new tasks are
// rejected through the error handler rather than started.
func (g *Group) Go(ctx context.Context, taskName string, fn func(context.Context) error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		if g.onErr != nil {
			g.onErr(taskName, ErrPoolClosed)
		}
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		run(context.WithoutCancel(ctx), g.logger, g.timeout, taskName, fn, g.onErr)
	}()
}

// Wait stops accepting tasks and blocks until in-flight tasks finish or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// WorkerPool manages a pool of workers that process tasks from a channel.
type WorkerPool struct {
	logger   *observability.Logger
	taskName string
	timeout  time.Duration
	workCh   chan func(context.Context) error
	doneCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	closed   bool
	errMu    sync.Mutex
	errs     []error
	shutdown sync.Once
}

// NewWorkerPool creates a new worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, logger, 4, "seed", 10*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//	pool.Submit(func(ctx context.Context) error { return seedOne(ctx) })
func NewWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		logger:   logger,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the pool, blocking while the queue is full.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close stops accepting tasks and waits for the queue to drain.
func (p *WorkerPool) Close() {
	p.closeQueue()
	<-p.doneCh
}

// Shutdown closes the queue and waits up to timeout before cancelling workers.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error
	p.shutdown.Do(func() {
		p.closeQueue()
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
		p.cancel()
	})
	return shutdownErr
}

// Errors returns every task error collected so far.
func (p *WorkerPool) Errors() []error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]error(nil), p.errs...)
}

func (p *WorkerPool) closeQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			run(p.ctx, p.logger, p.timeout, p.taskName, fn, func(_ string, err error) {
				p.errMu.Lock()
				p.errs = append(p.errs, err)
				p.errMu.Unlock()
			})
		}
	}
}

// Batch processes items concurrently and returns every error encountered.
func Batch[T any](ctx context.Context, logger *observability.Logger, items []T, workers int, taskName string,
	timeout time.Duration, fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, logger, workers, taskName, timeout)
	defer pool.Shutdown(time.Second)

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			pool.Close()
			return append(pool.Errors(), err)
		}
	}

	pool.Close()
	return pool.Errors()
}
