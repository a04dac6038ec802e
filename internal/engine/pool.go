package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolClosed is returned by Submit once the pool stopped accepting work.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrShutdownTimeout is returned when in-flight tasks outlive the shutdown wait.
	ErrShutdownTimeout = errors.New("timed out waiting for running tasks")
)

// Pool is an elastic goroutine pool shared by every queue. Goroutines are
// started on demand and exit with their task.
//
// Top-level tasks go through Submit and may be capped by a weighted
// semaphore. Subordinate work of an accepted task (output drains, process
// waiters) goes through Go and is never capped or refused, so a running task
// cannot starve its own helpers.
type Pool struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	sem    *semaphore.Weighted // nil when unbounded
	active atomic.Int64

	// drained is closed once wg reaches zero. Concurrent and repeated Wait
	// calls share it; it is reset when it fires.
	drained chan struct{}
}

// NewPool creates a pool. maxRunning > 0 caps concurrently running
// top-level tasks; extra tasks wait for a slot.
func NewPool(maxRunning int64) *Pool {
	p := &Pool{}
	if maxRunning > 0 {
		p.sem = semaphore.NewWeighted(maxRunning)
	}
	return p
}

// Submit schedules task. It never blocks on task execution.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Go(func() {
		if p.sem != nil {
			// Background context: Acquire cannot fail.
			_ = p.sem.Acquire(context.Background(), 1)
			defer p.sem.Release(1)
		}
		p.active.Add(1)
		defer p.active.Add(-1)
		task()
	})
	return nil
}

// Go runs subordinate work of an already accepted task. It is accepted even
// after Close because the owning task is still tracked by the pool.
func (p *Pool) Go(fn func()) {
	p.wg.Go(fn)
}

// Close stops the pool from accepting new tasks. Running tasks are unaffected.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Active returns the number of top-level tasks currently running.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Wait blocks until all tasks and their subordinate work finish. A positive
// timeout bounds the wait and yields ErrShutdownTimeout when exceeded.
func (p *Pool) Wait(timeout time.Duration) error {
	done := p.drainedChan()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// drainedChan returns the channel closed when the pool drains, starting at
// most one watcher for it.
func (p *Pool) drainedChan() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drained != nil {
		return p.drained
	}

	ch := make(chan struct{})
	p.drained = ch
	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.drained = nil
		p.mu.Unlock()
		close(ch)
	}()
	return ch
}
