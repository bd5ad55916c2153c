// Package queue provides a generic unbounded FIFO queue safe for concurrent use. The
// tuner's driver goroutine consumes trial events through one of these.
package queue

import (
	"context"
	"sync"
)

// Queue is a thread-safe FIFO queue.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	elems []T
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends an element to the tail of the queue.
func (q *Queue[T]) Put(t T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elems) == 0 {
		q.cond.Broadcast()
	}
	q.elems = append(q.elems, t)
}

// Get removes and returns the head of the queue, blocking while it is empty.
func (q *Queue[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.elems) == 0 {
		q.cond.Wait()
	}
	res := q.elems[0]
	q.elems = q.elems[1:]
	return res
}

// GetWithContext is Get, except it also returns early with ctx.Err() if the context is
// canceled while waiting. The watcher goroutine makes this comparatively expensive; the
// driver event loop polls rarely enough not to care.
func (q *Queue[T]) GetWithContext(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Taking the lock orders the broadcast after the waiter enters Wait, so
			// cancellation cannot slip between the waiter's check and its sleep.
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	for len(q.elems) == 0 && ctx.Err() == nil {
		q.cond.Wait()
	}
	if ctx.Err() != nil {
		var zero T
		return zero, ctx.Err()
	}
	res := q.elems[0]
	q.elems = q.elems[1:]
	return res, nil
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elems)
}
