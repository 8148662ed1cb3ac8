package harness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/frame"
)

// Queue is a FIFO of received frames. Enqueue never blocks; Dequeue blocks
// up to a timeout. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []*frame.Frame
	maxLen int

	// wake holds at most one pending signal.
	wake    chan struct{}
	dropped atomic.Uint64
}

// NewQueue creates a queue. maxLen <= 0 means unbounded; otherwise the
// oldest frame is dropped to make room.
func NewQueue(maxLen int) *Queue {
	return &Queue{
		maxLen: maxLen,
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue appends f to the tail.
func (q *Queue) Enqueue(f *frame.Frame) {
	q.mu.Lock()
	if q.maxLen > 0 && len(q.items) >= q.maxLen {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped.Add(1)
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.signal()
}

// Dequeue removes and returns the head frame, waiting up to timeout for
// one to arrive. timeout <= 0 polls once. Fails with ErrTimeout.
func (q *Queue) Dequeue(timeout time.Duration) (*frame.Frame, error) {
	if f := q.tryPop(); f != nil {
		return f, nil
	}
	if timeout <= 0 {
		return nil, ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return q.wait(timer.C, nil)
}

// DequeueContext is Dequeue bounded by ctx. A passed deadline yields
// ErrTimeout; cancellation yields ctx.Err().
func (q *Queue) DequeueContext(ctx context.Context) (*frame.Frame, error) {
	if f := q.tryPop(); f != nil {
		return f, nil
	}
	f, err := q.wait(nil, ctx.Done())
	if err != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ctx.Err()
	}
	return f, err
}

// Clear discards all queued frames and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of frames discarded by the length limit.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) wait(timeout <-chan time.Time, done <-chan struct{}) (*frame.Frame, error) {
	for {
		select {
		case <-q.wake:
			if f := q.tryPop(); f != nil {
				return f, nil
			}
		case <-timeout:
			if f := q.tryPop(); f != nil {
				return f, nil
			}
			return nil, ErrTimeout
		case <-done:
			if f := q.tryPop(); f != nil {
				return f, nil
			}
			return nil, ErrTimeout
		}
	}
}

// tryPop takes the head if present. When items remain it re-arms the wake
// signal for the next waiter.
func (q *Queue) tryPop() *frame.Frame {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()

	if more {
		q.signal()
	}
	return f
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
