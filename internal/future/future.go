// Package future provides single-assignment values that can be cancelled.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the error of a Future cancelled before it resolved.
var ErrCancelled = errors.New("future: cancelled")

// Future is a value that becomes available at most once. The first of
// Resolve, Reject or Cancel wins; later calls are no-ops.
type Future[T any] struct {
	once     sync.Once
	done     chan struct{}
	value    T
	err      error

	mu       sync.Mutex
	onCancel func()
}

// New returns a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already holding v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// OnCancel registers fn to run if the future is cancelled. It must be called
// before the future settles.
func (f *Future[T]) OnCancel(fn func()) *Future[T] {
	f.mu.Lock()
	f.onCancel = fn
	f.mu.Unlock()
	return f
}

// Resolve settles the future with v.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

// Cancel settles the future with ErrCancelled.
func (f *Future[T]) Cancel() bool {
	var zero T
	if !f.settle(zero, ErrCancelled) {
		return false
	}
	f.mu.Lock()
	fn := f.onCancel
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

func (f *Future[T]) settle(v T, err error) (won bool) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
