package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is enough to keep one build and one query in flight.
const DefaultPoolSize = 2

// Pool bounds how many long-running tasks execute at once. Submitters never
// block on the work itself; they get a Task to wait on.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most size tasks concurrently.
func NewPool(size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the pool's concurrency limit.
func (p *Pool) Size() int { return p.size }

// Task is the pending result of a function submitted with Go.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the task finishes or ctx is done. A cancelled wait does
// not cancel the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// ErrPoolClosed is returned by tasks submitted after Close.
var ErrPoolClosed = fmt.Errorf("worker pool is closed")

// Go runs fn on the pool. The task waits for a free slot, then runs fn with
// ctx. A panic in fn is recovered and returned as the task's error.
func Go[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		t.err = ErrPoolClosed
		close(t.done)
		return t
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(t.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			t.err = err
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				slog.Error("task_panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				t.err = fmt.Errorf("task panicked: %v", r)
			}
		}()

		t.value, t.err = fn(ctx)
	}()

	return t
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
