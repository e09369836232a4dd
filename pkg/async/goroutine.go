package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
)

// SafeGo executes a function in a goroutine with panic recovery, a timeout
// and error logging. Use this instead of bare `go func()` for fire-and-forget
// side effects such as notifier dispatch, where a panic or a hung transport
// must never take down or block the triggering request.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// WorkerPool manages a fixed set of workers draining a task channel, with
// graceful shutdown. The invitation re-dispatch sweep uses it to bound
// concurrent notifier calls.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *observability.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool and starts its workers.
func NewWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the pool. Returns false when the pool is shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.workCh <- fn:
		return true
	}
}

// Shutdown stops accepting work and waits up to grace for in-flight tasks.
func (p *WorkerPool) Shutdown(grace time.Duration) {
	p.shutdownOnce.Do(func() {
		p.cancel()
		select {
		case <-p.doneCh:
		case <-time.After(grace):
			p.logger.WithField("task", p.taskName).Warn("worker pool shutdown timed out")
		}
	})
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn := <-p.workCh:
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"task":  p.taskName,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("panic in worker task")
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).WithField("task", p.taskName).Error("worker task failed")
	}
}
