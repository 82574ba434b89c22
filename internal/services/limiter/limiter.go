// Package limiter provides a FIFO concurrency limiter used to bound the
// two scheduler tiers and outbound scrape-API calls.
package limiter

import (
	"context"
	"sync"
)

// Limiter admits at most capacity concurrent tasks. Waiters are admitted
// strictly in arrival order. Queued tasks are never cancelled by the
// limiter itself; cancellation is observed cooperatively inside the task.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	active   int
	waiters  []chan struct{}
}

// New creates a limiter with the given capacity. Capacity below 1 is
// treated as 1.
func New(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{capacity: capacity}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.active < l.capacity {
		l.active++
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Already admitted concurrently with cancellation; give the slot back.
		<-ready
		l.Release()
		return ctx.Err()
	}
}

// Release frees a slot and admits the next waiter, if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	if l.active > 0 {
		l.active--
	}
}

// Do runs fn under the limiter. The slot is released whether fn returns
// normally or panics.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Active returns the number of currently admitted tasks.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Waiting returns the number of queued waiters.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
