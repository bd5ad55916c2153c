package remote

import (
	"context"
	"fmt"
	"sync"
)

// ObjectRef is the future-like handle to a submitted task's result. It resolves exactly
// once, to either a value or an error; Get after resolution never blocks.
type ObjectRef[T any] struct {
	name string

	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newRef[T any](name string) *ObjectRef[T] {
	return &ObjectRef[T]{name: name, done: make(chan struct{})}
}

func (r *ObjectRef[T]) resolve(value T, err error) {
	r.once.Do(func() {
		r.value = value
		r.err = err
		close(r.done)
	})
}

// Name returns the task name the ref was submitted under.
func (r *ObjectRef[T]) Name() string {
	return r.name
}

// Done returns a channel closed when the ref resolves.
func (r *ObjectRef[T]) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether the ref has resolved.
func (r *ObjectRef[T]) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err returns the ref's error. It is only meaningful after the ref resolves.
func (r *ObjectRef[T]) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Get blocks until the ref resolves or ctx is canceled. When called from inside a
// running task with that task's context, the task yields its execution slot while
// waiting and reacquires it before resuming, so nested fan-out cannot deadlock a
// saturated pool.
func (r *ObjectRef[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	default:
	}

	if holder := slotHolderFrom(ctx); holder != nil {
		holder.yield()
		// Reacquire fails only when ctx is canceled, and then the task is unwinding
		// anyway.
		defer func() { _ = holder.reacquire(ctx) }()
	}

	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TaskError wraps an error or recovered panic from a task with the task's name.
type TaskError struct {
	Task string
	Err  error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *TaskError) Unwrap() error {
	return e.Err
}
