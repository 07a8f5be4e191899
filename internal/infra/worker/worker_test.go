package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weekly-snippets/internal/infra/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	seen  map[string]int
	block chan struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[id]++
	return nil
}

func (f *fakeDispatcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id]
}

type fakeLister struct {
	ListQueuedIDsFunc func(ctx context.Context, limit int) ([]string, error)
}

func (f *fakeLister) ListQueuedIDs(ctx context.Context, limit int) ([]string, error) {
	return f.ListQueuedIDsFunc(ctx, limit)
}

func TestPool(t *testing.T) {
	t.Run("should run submitted tasks and survive panics", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := NewPool(2, logging.Nop())
		p.Start(ctx)

		var ran atomic.Int32
		var wg sync.WaitGroup
		wg.Add(3)
		require.NoError(t, p.Submit(func(context.Context) error { defer wg.Done(); panic("boom") }))
		require.NoError(t, p.Submit(func(context.Context) error { defer wg.Done(); ran.Add(1); return errors.New("logged") }))
		require.NoError(t, p.Submit(func(context.Context) error { defer wg.Done(); ran.Add(1); return nil }))
		wg.Wait()
		assert.Equal(t, int32(2), ran.Load())

		p.Stop()
		p.Stop()
		assert.ErrorIs(t, p.Submit(func(context.Context) error { return nil }), ErrStopped)
	})

	t.Run("should reject nil tasks and a full queue", func(t *testing.T) {
		p := NewPool(1, logging.Nop())
		assert.ErrorIs(t, p.Submit(nil), ErrNilTask)
		for i := 0; i < 4; i++ {
			require.NoError(t, p.Submit(func(context.Context) error { return nil }))
		}
		assert.ErrorIs(t, p.Submit(func(context.Context) error { return nil }), ErrQueueFull)
	})
}

func TestOperationProcessor(t *testing.T) {
	t.Run("should dispatch each id once while in flight", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d := &fakeDispatcher{seen: map[string]int{}, block: make(chan struct{})}
		pool := NewPool(2, logging.Nop())
		pool.Start(ctx)
		defer pool.Stop()
		lister := &fakeLister{ListQueuedIDsFunc: func(context.Context, int) ([]string, error) {
			return []string{"op-1"}, nil
		}}
		proc := NewOperationProcessor(lister, d, pool, time.Millisecond, logging.Nop())

		require.NoError(t, proc.Enqueue(ctx, "op-1"))
		proc.Poll(ctx)
		require.NoError(t, proc.Enqueue(ctx, "op-1"))
		assert.Equal(t, 1, proc.InFlight())

		close(d.block)
		require.Eventually(t, func() bool { return proc.InFlight() == 0 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, d.count("op-1"))
	})

	t.Run("should pick up queued operations by polling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d := &fakeDispatcher{seen: map[string]int{}}
		pool := NewPool(1, logging.Nop())
		pool.Start(ctx)
		defer pool.Stop()
		var polls atomic.Int32
		lister := &fakeLister{ListQueuedIDsFunc: func(context.Context, int) ([]string, error) {
			if polls.Add(1) == 1 {
				return []string{"a", "b"}, nil
			}
			return nil, nil
		}}
		proc := NewOperationProcessor(lister, d, pool, 5*time.Millisecond, logging.Nop())
		go proc.Start(ctx)

		require.Eventually(t, func() bool { return d.count("a") == 1 && d.count("b") == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("should release the id when the pool is saturated", func(t *testing.T) {
		d := &fakeDispatcher{seen: map[string]int{}}
		pool := NewPool(1, logging.Nop())
		proc := NewOperationProcessor(&fakeLister{}, d, pool, time.Second, logging.Nop())
		for i := 0; i < 4; i++ {
			require.NoError(t, pool.Submit(func(context.Context) error { return nil }))
		}

		assert.ErrorIs(t, proc.Enqueue(context.Background(), "x"), ErrQueueFull)
		assert.Zero(t, proc.InFlight())
	})
}
