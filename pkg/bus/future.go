package bus

import (
	"context"
	"sync"
)

// Future is the pending result of an asynchronous service call.
type Future struct {
	done chan struct{}
	once sync.Once
	resp []byte
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Completed reports whether the result is available.
func (f *Future) Completed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the response and error. Only valid once Done is closed.
func (f *Future) Result() ([]byte, error) {
	return f.resp, f.err
}

// Wait blocks until the future completes or ctx ends.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// set completes the future. Only the first call has an effect.
func (f *Future) set(resp []byte, err error) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.done)
	})
}
