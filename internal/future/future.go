// ABOUTME: Resolve-once asynchronous result used for pending routes and gateway URLs
// ABOUTME: Any number of goroutines may Await a Future; only the first Resolve/Reject wins

package future

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadySettled is returned by TryResolve/TryReject after the future settled.
var ErrAlreadySettled = errors.New("future already settled")

// Future holds a value that becomes available at most once.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Go runs fn in a new goroutine and settles the returned future with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with v. Later calls are ignored.
func (f *Future[T]) Resolve(v T) {
	_ = f.TryResolve(v)
}

// Reject settles the future with err. Later calls are ignored.
func (f *Future[T]) Reject(err error) {
	_ = f.TryReject(err)
}

// TryResolve settles the future with v, or returns ErrAlreadySettled.
func (f *Future[T]) TryResolve(v T) error {
	return f.settle(v, nil)
}

// TryReject settles the future with err, or returns ErrAlreadySettled.
func (f *Future[T]) TryReject(err error) error {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) error {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		settled = true
		close(f.done)
	})
	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has settled.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// All waits for every future and returns their values in slice order. It
// fails with the first rejection to settle, without waiting on futures that
// are still pending.
func All[T any](ctx context.Context, fs []*Future[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	settled := make(chan int, len(fs))
	for i, f := range fs {
		go func() {
			select {
			case <-f.done:
				settled <- i
			case <-ctx.Done():
			}
		}()
	}

	for range fs {
		select {
		case i := <-settled:
			if err := fs[i].err; err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := make([]T, len(fs))
	for i, f := range fs {
		out[i] = f.value
	}
	return out, nil
}
