package execution_context

import "context"

// Bind captures ctx now and returns a continuation that always runs fn with it.
func Bind(ctx context.Context, fn func(ctx context.Context)) func() {
	return func() {
		fn(ctx)
	}
}

func Bind1[A any](ctx context.Context, fn func(ctx context.Context, a A)) func(A) {
	return func(a A) {
		fn(ctx, a)
	}
}

func Bind2[A any, B any](ctx context.Context, fn func(ctx context.Context, a A, b B)) func(A, B) {
	return func(a A, b B) {
		fn(ctx, a, b)
	}
}
