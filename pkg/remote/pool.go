// Package remote provides bounded asynchronous task execution with future-like result
// handles: submit a function, get back an ObjectRef that resolves to its result, chain
// refs as inputs to later tasks, and block on "resolve all". Slots gate task execution,
// not submission, and a task blocked on Get with its own context yields its slot.
package remote

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/edoakes/tunekit/pkg/logger"
)

// ErrPoolClosed resolves refs submitted after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Pool is a bounded executor for remote tasks.
type Pool struct {
	slots chan struct{}
	log   *logrus.Entry

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithSlots sets the number of tasks that may execute concurrently. Zero or negative
// values fall back to the default of runtime.NumCPU().
func WithSlots(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.slots = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Pool) {
		p.log = log
	}
}

// NewPool creates a Pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		slots: make(chan struct{}, runtime.NumCPU()),
		log:   logger.NewContext("component", "remote-pool").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < cap(p.slots); i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Slots returns the pool's concurrency bound.
func (p *Pool) Slots() int {
	return cap(p.slots)
}

// Close marks the pool closed and waits for running tasks to drain. It is idempotent;
// refs submitted after Close resolve immediately with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// add registers a task with the pool, or reports that the pool is closed.
func (p *Pool) add() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

// acquire takes an execution slot, or fails with ctx.Err() if ctx is canceled first.
func (p *Pool) acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	p.slots <- struct{}{}
}

// slotHolder lets a running task give up and retake its execution slot. It travels in
// the task's context so ObjectRef.Get can find it; only the task's own goroutine
// touches it.
type slotHolder struct {
	pool *Pool
	held bool
}

func (h *slotHolder) yield() {
	if !h.held {
		return
	}
	h.held = false
	h.pool.release()
}

func (h *slotHolder) reacquire(ctx context.Context) error {
	if h.held {
		return nil
	}
	if err := h.pool.acquire(ctx); err != nil {
		return err
	}
	h.held = true
	return nil
}

type slotHolderKey struct{}

func withSlotHolder(ctx context.Context, h *slotHolder) context.Context {
	return context.WithValue(ctx, slotHolderKey{}, h)
}

func slotHolderFrom(ctx context.Context) *slotHolder {
	h, _ := ctx.Value(slotHolderKey{}).(*slotHolder)
	return h
}

// run acquires a slot, executes fn under a task context, and resolves the ref. Panics
// in fn resolve the ref with a TaskError rather than crashing the process.
func run[T any](ctx context.Context, p *Pool, name string, ref *ObjectRef[T],
	fn func(ctx context.Context) (T, error),
) {
	defer p.wg.Done()

	if err := p.acquire(ctx); err != nil {
		var zero T
		ref.resolve(zero, err)
		return
	}
	holder := &slotHolder{pool: p, held: true}
	defer func() {
		if holder.held {
			p.release()
		}
	}()

	taskCtx := withSlotHolder(ctx, holder)

	var value T
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = &TaskError{
					Task: name,
					Err:  errors.Errorf("panic: %v\n%s", rec, debug.Stack()),
				}
			}
		}()
		value, err = fn(taskCtx)
	}()
	if err != nil {
		if _, ok := err.(*TaskError); !ok {
			err = &TaskError{Task: name, Err: err}
		}
		p.log.WithField("task", name).Debugf("task failed: %v", err)
	}
	ref.resolve(value, err)
}
