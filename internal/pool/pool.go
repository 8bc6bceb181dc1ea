// Package pool bounds the number of concurrent external-tool invocations.
// A fixed set of worker goroutines drains a FIFO task queue; callers block
// in Submit until their task has run. The pool owns capacity accounting
// only, never file or process state.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// taskQueueFactor sizes the submission queue relative to the worker count.
const taskQueueFactor = 8

type task struct {
	run  func()
	done chan struct{}
}

type Pool struct {
	tasks   chan *task
	workers int
	wg      sync.WaitGroup
	active  atomic.Int64
	logger  *zap.Logger
}

func New(workers int, logger *zap.Logger) *Pool {
	return &Pool{
		tasks:   make(chan *task, workers*taskQueueFactor),
		workers: workers,
		logger:  logger.With(zap.String("component", "worker_pool")),
	}
}

// Start launches the worker goroutines. The pool size is fixed for the
// lifetime of the process.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Worker pool started", zap.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx)
		}()
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Admitted tasks run to completion even during shutdown,
			// so drain whatever is already queued before returning.
			for {
				select {
				case t := <-p.tasks:
					p.execute(t)
				default:
					return
				}
			}
		case t := <-p.tasks:
			p.execute(t)
		}
	}
}

func (p *Pool) execute(t *task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", zap.Any("panic", r))
		}
	}()

	t.run()
}

// Submit queues run and blocks until it has executed. Submission order is
// admission order. A task that has been admitted cannot be cancelled; ctx
// only guards the wait for a queue slot.
func (p *Pool) Submit(ctx context.Context, run func()) error {
	t := &task{run: run, done: make(chan struct{})}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	<-t.done
	return nil
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns the number of tasks currently executing. Never exceeds
// the worker count.
func (p *Pool) InFlight() int64 {
	return p.active.Load()
}

// QueueDepth returns the number of tasks admitted but not yet started.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}
