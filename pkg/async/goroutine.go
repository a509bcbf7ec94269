package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

// SafeGo executes fn in a goroutine with panic recovery and a per-task
// timeout. Failures are logged and never propagate; use this for best-effort
// work such as event publication where the caller must not block or fail.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed set of workers. Used to bound
// concurrency of event delivery and maintenance fan-out.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	workCh chan func(context.Context) error
	doneCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce    sync.Once
	shutdownOnce sync.Once
}

// NewWorkerPool creates and starts a pool of the given size. Each task runs
// under its own timeout derived from ctx.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *observability.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(p.doneCh)
	}()
	return p
}

// Submit queues a task. Returns an error once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %q shut down", p.taskName)
	case p.workCh <- fn:
		return nil
	}
}

// Shutdown drains queued tasks, waiting up to timeout for workers to finish
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.closeOnce.Do(func() { close(p.workCh) })
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
		}
		p.cancel()
	})
	return err
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
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer observability.RecoverPanic(p.logger, p.taskName)

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).WithField("task", p.taskName).Warn("worker task failed")
	}
}
