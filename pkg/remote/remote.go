package remote

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/edoakes/tunekit/pkg/mathx"
)

// Func is the signature of a remote task. The context is the task's own: it observes
// cancellation of the submitting context, and passing it to ObjectRef.Get yields the
// task's execution slot while waiting.
type Func[T any] func(ctx context.Context) (T, error)

// Submit schedules fn on the pool and returns a ref that resolves to its result.
// Submission never blocks; execution waits for a free slot.
func Submit[T any](ctx context.Context, p *Pool, name string, fn Func[T]) *ObjectRef[T] {
	ref := newRef[T](name)
	if !p.add() {
		var zero T
		ref.resolve(zero, ErrPoolClosed)
		return ref
	}
	go run(ctx, p, name, ref, fn)
	return ref
}

// Then schedules fn to run on in's result once it resolves, without blocking the
// caller. The task acquires an execution slot only after in resolves; if in resolved
// to an error, fn never runs and the error propagates to the returned ref.
func Then[A, B any](
	ctx context.Context, p *Pool, in *ObjectRef[A], name string,
	fn func(ctx context.Context, in A) (B, error),
) *ObjectRef[B] {
	ref := newRef[B](name)
	if !p.add() {
		var zero B
		ref.resolve(zero, ErrPoolClosed)
		return ref
	}
	go func() {
		select {
		case <-in.Done():
		case <-ctx.Done():
			p.wg.Done()
			var zero B
			ref.resolve(zero, ctx.Err())
			return
		}
		if err := in.Err(); err != nil {
			p.wg.Done()
			var zero B
			ref.resolve(zero, err)
			return
		}
		run(ctx, p, name, ref, func(taskCtx context.Context) (B, error) {
			return fn(taskCtx, in.value)
		})
	}()
	return ref
}

// Combine is Then over two inputs: fn runs once both refs resolve successfully, and
// an upstream error propagates without running fn.
func Combine[A, B, C any](
	ctx context.Context, p *Pool, a *ObjectRef[A], b *ObjectRef[B], name string,
	fn func(ctx context.Context, a A, b B) (C, error),
) *ObjectRef[C] {
	ref := newRef[C](name)
	if !p.add() {
		var zero C
		ref.resolve(zero, ErrPoolClosed)
		return ref
	}
	go func() {
		for _, done := range []<-chan struct{}{a.Done(), b.Done()} {
			select {
			case <-done:
			case <-ctx.Done():
				p.wg.Done()
				var zero C
				ref.resolve(zero, ctx.Err())
				return
			}
		}
		if err := a.Err(); err != nil {
			p.wg.Done()
			var zero C
			ref.resolve(zero, err)
			return
		}
		if err := b.Err(); err != nil {
			p.wg.Done()
			var zero C
			ref.resolve(zero, err)
			return
		}
		run(ctx, p, name, ref, func(taskCtx context.Context) (C, error) {
			return fn(taskCtx, a.value, b.value)
		})
	}()
	return ref
}

// All blocks until every ref resolves and returns their values in submission order.
// Task errors are aggregated; the values slice holds zero values at errored positions.
// No refs resolves to an empty slice and a nil error.
func All[T any](ctx context.Context, refs ...*ObjectRef[T]) ([]T, error) {
	values := make([]T, len(refs))
	var errs *multierror.Error
	for i, ref := range refs {
		v, err := ref.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = multierror.Append(errs, err)
			continue
		}
		values[i] = v
	}
	return values, errs.ErrorOrNil()
}

// Wait blocks until at least k of the refs have resolved, then splits them into
// (ready, notReady) in submission order. k larger than len(refs) clamps.
func Wait[T any](
	ctx context.Context, k int, refs ...*ObjectRef[T],
) (ready, notReady []*ObjectRef[T], err error) {
	k = mathx.Clamp(0, k, len(refs))

	resolved := make(chan struct{}, len(refs))
	for _, ref := range refs {
		go func(done <-chan struct{}) {
			select {
			case <-done:
				resolved <- struct{}{}
			case <-ctx.Done():
			}
		}(ref.Done())
	}
	for have := 0; have < k; have++ {
		select {
		case <-resolved:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	for _, ref := range refs {
		if ref.Resolved() {
			ready = append(ready, ref)
		} else {
			notReady = append(notReady, ref)
		}
	}
	return ready, notReady, nil
}
