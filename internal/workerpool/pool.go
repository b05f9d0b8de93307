// Package workerpool runs tasks on a fixed number of goroutines fed by a
// bounded queue.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned for tasks offered after Stop or after the start
// context is done.
var ErrStopped = errors.New("worker pool is stopped")

// Task is a unit of work. Errors are logged, never retried by the pool.
type Task func(ctx context.Context) error

// Pool is a fixed-size worker pool.
type Pool struct {
	name        string
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	stopOnce    sync.Once
	quit        chan struct{}

	// mu guards closed and done; senders hold it for reading so the queue is
	// never closed under them.
	mu     sync.RWMutex
	closed bool
	done   <-chan struct{}
}

// New creates a pool with workerCount workers and room for queueSize pending
// tasks. Non-positive values fall back to 1.
func New(name string, workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		name:        name,
		workerCount: workerCount,
		tasks:       make(chan Task, queueSize),
		quit:        make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.done = ctx.Done()
	p.mu.Unlock()

	for range p.workerCount {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop closes the queue and waits for in-flight tasks. Queued tasks are
// drained unless the start context is already cancelled. Stop is idempotent.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// Enqueue blocks until the task is queued, ctx is done or the pool stops.
func (p *Pool) Enqueue(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || isDone(p.done) {
		return ErrStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrStopped
	case <-p.quit:
		return ErrStopped
	}
}

// TryEnqueue queues the task without blocking. It returns false when the
// queue is full or the pool no longer runs tasks.
func (p *Pool) TryEnqueue(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || isDone(p.done) {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := task(ctx); err != nil {
				log.Error().Err(err).Str("pool", p.name).Msg("task failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
