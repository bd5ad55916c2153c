package remote

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func sleepy(d time.Duration) Func[int] {
	return func(ctx context.Context) (int, error) {
		select {
		case <-time.After(d):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func TestTasksRunInParallel(t *testing.T) {
	p := NewPool(WithSlots(4))
	defer p.Close()
	ctx := context.Background()

	const d = 100 * time.Millisecond
	start := time.Now()
	refs := make([]*ObjectRef[int], 4)
	for i := range refs {
		refs[i] = Submit(ctx, p, "sleepy", sleepy(d))
	}
	values, err := All(ctx, refs...)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 1, 1}, values)
	// Four one-unit tasks on four slots take about one unit, not four.
	require.GreaterOrEqual(t, elapsed, d)
	require.Less(t, elapsed, 4*d)
}

func TestSlotsBoundExecution(t *testing.T) {
	p := NewPool(WithSlots(1))
	defer p.Close()
	ctx := context.Background()

	const d = 50 * time.Millisecond
	start := time.Now()
	refs := []*ObjectRef[int]{
		Submit(ctx, p, "a", sleepy(d)),
		Submit(ctx, p, "b", sleepy(d)),
	}
	_, err := All(ctx, refs...)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 2*d)
}

func TestChainedPipelineLoss(t *testing.T) {
	// Four shards through load -> normalize -> train -> score, summed, must give
	// exactly 4000.
	p := NewPool(WithSlots(4))
	defer p.Close()
	ctx := context.Background()

	var scores []*ObjectRef[int]
	for shard := 0; shard < 4; shard++ {
		load := Submit(ctx, p, "load", func(ctx context.Context) (int, error) {
			return 100, nil
		})
		normalize := Then(ctx, p, load, "normalize",
			func(ctx context.Context, v int) (int, error) {
				return v * 2, nil
			})
		train := Then(ctx, p, normalize, "train",
			func(ctx context.Context, v int) (int, error) {
				return v * 5, nil
			})
		scores = append(scores, train)
	}

	values, err := All(ctx, scores...)
	require.NoError(t, err)
	total := 0
	for _, v := range values {
		total += v
	}
	require.Equal(t, 4000, total)
}

func TestThenSkipsOnUpstreamError(t *testing.T) {
	p := NewPool(WithSlots(2))
	defer p.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	bad := Submit(ctx, p, "bad", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	ran := false
	chained := Then(ctx, p, bad, "chained", func(ctx context.Context, v int) (int, error) {
		ran = true
		return v + 1, nil
	})

	_, err := chained.Get(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, "bad", taskErr.Task)
	require.False(t, ran)
}

func TestCombineJoinsTwoInputs(t *testing.T) {
	p := NewPool(WithSlots(2))
	defer p.Close()
	ctx := context.Background()

	a := Submit(ctx, p, "a", func(ctx context.Context) (int, error) { return 3, nil })
	b := Submit(ctx, p, "b", func(ctx context.Context) (int, error) { return 4, nil })
	sum := Combine(ctx, p, a, b, "sum",
		func(ctx context.Context, a, b int) (int, error) {
			return a + b, nil
		})

	v, err := sum.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestCombineSkipsOnUpstreamError(t *testing.T) {
	p := NewPool(WithSlots(2))
	defer p.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	good := Submit(ctx, p, "good", func(ctx context.Context) (int, error) { return 3, nil })
	bad := Submit(ctx, p, "bad", func(ctx context.Context) (int, error) { return 0, boom })
	ran := false
	joined := Combine(ctx, p, good, bad, "joined",
		func(ctx context.Context, a, b int) (int, error) {
			ran = true
			return a + b, nil
		})

	_, err := joined.Get(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.False(t, ran)
}

func TestNestedSubmissionDoesNotDeadlock(t *testing.T) {
	// A task on a single-slot pool fans out a child and blocks on it with its own task
	// context; Get must yield the parent's slot so the child can run.
	p := NewPool(WithSlots(1))
	defer p.Close()
	ctx := context.Background()

	parent := Submit(ctx, p, "parent", func(taskCtx context.Context) (int, error) {
		child := Submit(taskCtx, p, "child", func(ctx context.Context) (int, error) {
			return 21, nil
		})
		v, err := child.Get(taskCtx)
		return v * 2, err
	})

	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := parent.Get(getCtx)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestNestedTreeReduction(t *testing.T) {
	p := NewPool(WithSlots(2))
	defer p.Close()
	ctx := context.Background()

	var fanout func(taskCtx context.Context, depth, value int) (int, error)
	fanout = func(taskCtx context.Context, depth, value int) (int, error) {
		if depth == 0 {
			return value, nil
		}
		left := Submit(taskCtx, p, "left", func(c context.Context) (int, error) {
			return fanout(c, depth-1, value)
		})
		right := Submit(taskCtx, p, "right", func(c context.Context) (int, error) {
			return fanout(c, depth-1, value)
		})
		values, err := All(taskCtx, left, right)
		if err != nil {
			return 0, err
		}
		return values[0] + values[1], nil
	}

	root := Submit(ctx, p, "root", func(c context.Context) (int, error) {
		return fanout(c, 3, 1)
	})
	v, err := root.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, v)
}

func TestPanicBecomesTaskError(t *testing.T) {
	p := NewPool(WithSlots(1))
	defer p.Close()
	ctx := context.Background()

	ref := Submit(ctx, p, "panicky", func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	_, err := ref.Get(ctx)
	require.Error(t, err)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, "panicky", taskErr.Task)
	require.Contains(t, err.Error(), "kaboom")

	// A sibling task is unaffected.
	ok := Submit(ctx, p, "fine", func(ctx context.Context) (int, error) { return 1, nil })
	v, err := ok.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestSubmitAfterClose(t *testing.T) {
	p := NewPool(WithSlots(1))
	p.Close()
	p.Close() // idempotent

	ref := Submit(context.Background(), p, "late", sleepy(time.Millisecond))
	_, err := ref.Get(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestCanceledSubmissionErrorsRef(t *testing.T) {
	p := NewPool(WithSlots(1))
	defer p.Close()

	block := make(chan struct{})
	hog := Submit(context.Background(), p, "hog", func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	waiting := Submit(ctx, p, "waiting", sleepy(time.Millisecond))
	cancel()

	_, err := waiting.Get(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	close(block)
	_, err = hog.Get(context.Background())
	require.NoError(t, err)
}

func TestAllEmptyAndWaitClamp(t *testing.T) {
	ctx := context.Background()

	values, err := All[int](ctx)
	require.NoError(t, err)
	require.Empty(t, values)

	p := NewPool(WithSlots(2))
	defer p.Close()
	refs := []*ObjectRef[int]{
		Submit(ctx, p, "a", sleepy(time.Millisecond)),
		Submit(ctx, p, "b", sleepy(time.Millisecond)),
	}
	ready, notReady, err := Wait(ctx, 10, refs...)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	require.Empty(t, notReady)
}

func TestWaitFirstK(t *testing.T) {
	p := NewPool(WithSlots(2))
	defer p.Close()
	ctx := context.Background()

	block := make(chan struct{})
	fast := Submit(ctx, p, "fast", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	slow := Submit(ctx, p, "slow", func(ctx context.Context) (int, error) {
		<-block
		return 2, nil
	})

	ready, notReady, err := Wait(ctx, 1, fast, slow)
	require.NoError(t, err)
	require.Equal(t, "fast", ready[0].Name())
	require.Len(t, notReady, 1)
	require.Equal(t, "slow", notReady[0].Name())

	close(block)
	_, err = slow.Get(ctx)
	require.NoError(t, err)
}
