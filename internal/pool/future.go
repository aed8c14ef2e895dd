package pool

import (
	"context"
	"sync"
)

// Future is the pending result of a submitted job.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the job has finished or been aborted.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the job completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}
