package execution_context

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// Loop multiplexes continuations of independent flows onto one goroutine.
// It owns a single "current context" slot; every continuation bound through
// the loop pushes its captured context into that slot for the duration of the
// call and pops back to whatever was there before.
type Loop[T any] struct {
	mu      sync.Mutex
	pending *queue.Queue
	wake    chan struct{}
	current context.Context
	closed  bool
}

func NewLoop[T any]() *Loop[T] {
	return &Loop[T]{
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		current: context.Background(),
	}
}

// Current returns the context active on the loop's timeline right now.
func (l *Loop[T]) Current() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// CurrentScope returns the scope of Current, if any.
func (l *Loop[T]) CurrentScope() (*Scope[T], bool) {
	return FromContext[T](l.Current())
}

// Bind captures ctx and returns a continuation that makes ctx current while
// fn runs, restoring the previous context afterwards, also when fn panics.
func (l *Loop[T]) Bind(ctx context.Context, fn func(ctx context.Context)) func() {
	return func() {
		previous := l.swap(ctx)
		defer l.swap(previous)
		fn(ctx)
	}
}

// Schedule binds fn to ctx and queues it.
func (l *Loop[T]) Schedule(ctx context.Context, fn func(ctx context.Context)) error {
	return l.Post(l.Bind(ctx, fn))
}

func (l *Loop[T]) Post(task func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.pending.Add(task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loop[T]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Length()
}

// RunPending runs queued tasks on the calling goroutine until the queue is
// empty, including tasks queued by the tasks themselves. It returns the number
// of tasks run.
func (l *Loop[T]) RunPending() int {
	count := 0
	for {
		task, ok := l.next()
		if !ok {
			return count
		}
		task()
		count++
	}
}

// Run processes tasks until ctx is done or the loop is closed.
func (l *Loop[T]) Run(ctx context.Context) error {
	for {
		l.RunPending()
		if l.isClosed() {
			return ErrLoopClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close rejects further tasks. Tasks already queued are still run by RunPending.
func (l *Loop[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop[T]) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending.Length() == 0 {
		return nil, false
	}
	return l.pending.Remove().(func()), true
}

func (l *Loop[T]) swap(ctx context.Context) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.current
	l.current = ctx
	return previous
}

func (l *Loop[T]) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

var ErrLoopClosed = errors.New("execution loop is closed")
