package execution_context

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_Bind(t *testing.T) {
	t.Run("Restores the previous context after the continuation", func(t *testing.T) {
		loop := NewLoop[string]()
		ctx, scope := Enter[string](context.Background())
		scope.SetActive("a")

		var during string
		loop.Bind(ctx, func(ctx context.Context) {
			current, ok := loop.CurrentScope()
			require.True(t, ok)
			during, _ = current.Active()
		})()

		assert.Equal(t, "a", during)
		_, ok := loop.CurrentScope()
		assert.False(t, ok)
	})

	t.Run("Pushes and pops around nested continuations", func(t *testing.T) {
		loop := NewLoop[string]()
		ctxA, scopeA := Enter[string](context.Background())
		scopeA.SetActive("a")
		ctxB, scopeB := Enter[string](context.Background())
		scopeB.SetActive("b")

		var seen []string
		currentLabel := func() string {
			scope, ok := loop.CurrentScope()
			if !ok {
				return "none"
			}
			active, _ := scope.Active()
			return active
		}
		continueB := loop.Bind(ctxB, func(ctx context.Context) {
			seen = append(seen, currentLabel())
		})
		loop.Bind(ctxA, func(ctx context.Context) {
			seen = append(seen, currentLabel())
			continueB()
			seen = append(seen, currentLabel())
		})()
		seen = append(seen, currentLabel())

		assert.Equal(t, []string{"a", "b", "a", "none"}, seen)
	})

	t.Run("Restores the previous context when the continuation panics", func(t *testing.T) {
		loop := NewLoop[string]()
		ctx, _ := Enter[string](context.Background())
		assert.Panics(t, loop.Bind(ctx, func(ctx context.Context) {
			panic("boom")
		}))
		assert.Equal(t, context.Background(), loop.Current())
	})
}

func TestLoop_RunPending(t *testing.T) {
	t.Run("Keeps interleaved flows apart on one timeline", func(t *testing.T) {
		loop := NewLoop[string]()
		ctxA, scopeA := Enter[string](context.Background())
		scopeA.SetActive("a")
		ctxB, scopeB := Enter[string](context.Background())
		scopeB.SetActive("b")

		var seen []string
		observe := func(label string) func(ctx context.Context) {
			return func(ctx context.Context) {
				scope, _ := loop.CurrentScope()
				active, _ := scope.Active()
				seen = append(seen, label+"="+active)
			}
		}
		require.NoError(t, loop.Schedule(ctxA, observe("a1")))
		require.NoError(t, loop.Schedule(ctxB, observe("b1")))
		require.NoError(t, loop.Schedule(ctxA, func(ctx context.Context) {
			// a continuation registering another continuation keeps its flow
			observe("a2")(ctx)
			require.NoError(t, loop.Schedule(ctx, observe("a3")))
		}))
		require.NoError(t, loop.Schedule(ctxB, observe("b2")))

		count := loop.RunPending()
		assert.Equal(t, 5, count)
		assert.Equal(t, []string{"a1=a", "b1=b", "a2=a", "b2=b", "a3=a"}, seen)
		assert.Equal(t, 0, loop.Pending())
	})
}

func TestLoop_Run(t *testing.T) {
	t.Run("Processes posted tasks until the context is done", func(t *testing.T) {
		loop := NewLoop[string]()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- loop.Run(ctx)
		}()

		ran := make(chan struct{})
		require.NoError(t, loop.Post(func() { close(ran) }))
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("task was not run")
		}
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("Stops and rejects tasks once closed", func(t *testing.T) {
		loop := NewLoop[string]()
		done := make(chan error, 1)
		go func() {
			done <- loop.Run(context.Background())
		}()
		loop.Close()
		assert.ErrorIs(t, <-done, ErrLoopClosed)
		assert.ErrorIs(t, loop.Post(func() {}), ErrLoopClosed)
	})
}
