package instrumentation

import (
	"context"
	"sync"
)

// Future is a value that settles once, either resolved or rejected.
// Continuations chained with Then run in the context the future was created
// or last rebound with.
type Future[T any] struct {
	mu        sync.Mutex
	ctx       context.Context
	done      chan struct{}
	settled   bool
	result    T
	err       error
	observers []func(err error)
}

func NewFuture[T any](ctx context.Context) *Future[T] {
	return &Future[T]{
		ctx:  ctx,
		done: make(chan struct{}),
	}
}

// Go runs fn on a new goroutine and settles the future with its outcome.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T](ctx)
	go func() {
		result, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(result)
	}()
	return f
}

func (f *Future[T]) Resolve(result T) bool {
	return f.settle(result, nil)
}

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(result T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.result = result
	f.err = err
	observers := f.observers
	f.observers = nil
	close(f.done)
	f.mu.Unlock()

	for _, observer := range observers {
		observer(err)
	}
	return true
}

// OnSettled registers fn to run when the future settles, or right away if it already has.
// Observers run in registration order.
func (f *Future[T]) OnSettled(fn func(err error)) {
	f.mu.Lock()
	if !f.settled {
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
		return
	}
	err := f.err
	f.mu.Unlock()
	fn(err)
}

// Rebind moves continuations chained from now on to ctx.
func (f *Future[T]) Rebind(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = ctx
}

// Then chains fn onto the future. fn runs with the context current at the time of chaining.
func (f *Future[T]) Then(fn func(ctx context.Context, result T, err error)) {
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	f.OnSettled(func(err error) {
		result, _, _ := f.Result()
		fn(ctx, result, err)
	})
}

// Result returns the outcome without blocking. settled is false until the future settles.
func (f *Future[T]) Result() (result T, settled bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.settled, f.err
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		result, _, err := f.Result()
		return result, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
