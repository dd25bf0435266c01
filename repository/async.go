package repository

import (
	"context"

	"github.com/jacentio/docrepo/store"
)

// Result is the outcome of an asynchronous operation.
type Result[V any] struct {
	Value V
	Err   error
}

// goAsync runs fn on its own goroutine and delivers its outcome on a buffered
// channel, so an abandoned result never leaks the goroutine.
func goAsync[V any](fn func() (V, error)) <-chan Result[V] {
	out := make(chan Result[V], 1)
	go func() {
		v, err := fn()
		out <- Result[V]{Value: v, Err: err}
	}()
	return out
}

// Await blocks until the result arrives or ctx is done.
func Await[V any](ctx context.Context, ch <-chan Result[V]) (V, error) {
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// SaveAsync runs Save without blocking the caller. Documents are still
// written one after another in registration order. The caller must not
// start another Save on this repository before the result arrives.
func (r *Repository[T, P]) SaveAsync(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- r.Save(ctx)
	}()
	return out
}

// GetByIDAsync is the asynchronous form of GetByID.
func (r *Repository[T, P]) GetByIDAsync(ctx context.Context, id string) <-chan Result[P] {
	return goAsync(func() (P, error) { return r.GetByID(ctx, id) })
}

// GetSingleAsync is the asynchronous form of GetSingle.
func (r *Repository[T, P]) GetSingleAsync(ctx context.Context, f store.Filter) <-chan Result[P] {
	return goAsync(func() (P, error) { return r.GetSingle(ctx, f) })
}

// GetAllAsync is the asynchronous form of GetAll.
func (r *Repository[T, P]) GetAllAsync(ctx context.Context, q store.Query) <-chan Result[[]P] {
	return goAsync(func() ([]P, error) { return r.GetAll(ctx, q) })
}

// GetPageAsync is the asynchronous form of GetPage.
func (r *Repository[T, P]) GetPageAsync(ctx context.Context, q store.Query, pageSize, pageIndex int) <-chan Result[Page[P]] {
	return goAsync(func() (Page[P], error) { return r.GetPage(ctx, q, pageSize, pageIndex) })
}

// AnyAsync is the asynchronous form of Any.
func (r *Repository[T, P]) AnyAsync(ctx context.Context, f store.Filter) <-chan Result[bool] {
	return goAsync(func() (bool, error) { return r.Any(ctx, f) })
}

// CountAsync is the asynchronous form of Count.
func (r *Repository[T, P]) CountAsync(ctx context.Context, f store.Filter) <-chan Result[int64] {
	return goAsync(func() (int64, error) { return r.Count(ctx, f) })
}

// DeleteAsync is the asynchronous form of Delete.
func (r *Repository[T, P]) DeleteAsync(ctx context.Context, doc P) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- r.Delete(ctx, doc)
	}()
	return out
}

// DeleteWhereAsync is the asynchronous form of DeleteWhere.
func (r *Repository[T, P]) DeleteWhereAsync(ctx context.Context, f store.Filter) <-chan Result[int64] {
	return goAsync(func() (int64, error) { return r.DeleteWhere(ctx, f) })
}
