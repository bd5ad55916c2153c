// Package errgroupx wraps golang.org/x/sync/errgroup with a group-scoped context so the
// context cannot leak past the lifetime of the group, plus panic recovery for goroutines
// that run user-supplied code.
package errgroupx

import (
	"context"
	"runtime/debug"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group runs a set of goroutines sharing one cancelable context.
type Group struct {
	inner   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	recover bool
}

// WithContext creates a Group as a child of the given context.
func WithContext(ctx context.Context) *Group {
	bridge, cancel := context.WithCancel(ctx)
	g, groupCtx := errgroup.WithContext(bridge)
	return &Group{inner: g, ctx: groupCtx, cancel: cancel}
}

// WithRecover makes the group recover panics from spawned goroutines and return them as
// errors when awaiting the group.
func (g *Group) WithRecover() *Group {
	g.recover = true
	return g
}

// WithLimit bounds the number of concurrently running goroutines; further Go calls block
// until a slot frees up.
func (g *Group) WithLimit(n int) *Group {
	g.inner.SetLimit(n)
	return g
}

// Go launches f as a member of the group. The first member to return a non-nil error
// cancels the group context.
func (g *Group) Go(f func(ctx context.Context) error) {
	g.inner.Go(func() (err error) {
		if g.recover {
			defer func() {
				if rec := recover(); rec != nil {
					err = errors.Errorf("panic: %v\n%s", rec, debug.Stack())
				}
			}()
		}
		return f(g.ctx)
	})
}

// Wait blocks until all members have returned and yields the first error.
func (g *Group) Wait() error {
	return g.inner.Wait()
}

// Cancel cancels the group context without waiting for members to exit.
func (g *Group) Cancel() {
	g.cancel()
}

// Close cancels the group and waits for it to drain.
func (g *Group) Close() error {
	g.cancel()
	return g.Wait()
}
