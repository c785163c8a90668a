// Package execution_context tracks the value that is "active right now" for
// one logical flow of work, across callbacks and goroutines that continue
// that flow later.
//
// A Scope is an isolated bookkeeping cell carried by a context.Context. Entering
// a new scope captures the enclosing scope's active value as its starting
// point; afterwards both slots change independently. Continuations keep the
// scope of the context they were bound to, no matter which flow happens to
// invoke them.
package execution_context

import (
	"context"
	"sync"
	"sync/atomic"
)

type scopeKey[T any] struct{}

var lastScopeID atomic.Uint64

type Scope[T any] struct {
	id     uint64
	parent *Scope[T]

	mu         sync.Mutex
	initial    T
	hasInitial bool
	active     T
	hasActive  bool
	suppressed bool
}

// Enter returns a child of ctx holding a fresh scope.
func Enter[T any](ctx context.Context) (context.Context, *Scope[T]) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, _ := FromContext[T](ctx)
	scope := &Scope[T]{
		id:     lastScopeID.Add(1),
		parent: parent,
	}
	if parent != nil {
		scope.initial, scope.hasInitial = parent.Active()
		scope.active, scope.hasActive = scope.initial, scope.hasInitial
		scope.suppressed = parent.Suppressed()
	}
	return context.WithValue(ctx, scopeKey[T]{}, scope), scope
}

// Run calls fn inside a freshly entered scope and returns its result.
func Run[T any, R any](ctx context.Context, fn func(ctx context.Context) R) R {
	scopedCtx, _ := Enter[T](ctx)
	return fn(scopedCtx)
}

// FromContext returns the innermost scope carried by ctx.
func FromContext[T any](ctx context.Context) (*Scope[T], bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(scopeKey[T]{}).(*Scope[T])
	return scope, ok && scope != nil
}

func (s *Scope[T]) ID() uint64 {
	return s.id
}

// Parent returns the enclosing scope, nil for an outermost scope.
func (s *Scope[T]) Parent() *Scope[T] {
	return s.parent
}

// Initial returns the value that was active in the enclosing scope when s was entered.
func (s *Scope[T]) Initial() (T, bool) {
	return s.initial, s.hasInitial
}

func (s *Scope[T]) Active() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.hasActive
}

func (s *Scope[T]) SetActive(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = value
	s.hasActive = true
}

// Replace installs next only if current is still the active value. It reports
// whether the swap happened.
func (s *Scope[T]) Replace(current T, next T, nextOK bool, same func(a, b T) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasActive || !same(s.active, current) {
		return false
	}
	s.active = next
	s.hasActive = nextOK
	return true
}

func (s *Scope[T]) Suppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}

func (s *Scope[T]) SetSuppressed(suppressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed = suppressed
}
