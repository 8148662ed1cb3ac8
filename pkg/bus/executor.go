package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Executor runs the queued callbacks of its nodes, one at a time, on the
// goroutine that calls Spin or SpinOnce.
type Executor struct {
	mu    sync.Mutex
	nodes []*Node
	next  int

	wake     chan struct{}
	spinning atomic.Bool
	logger   *slog.Logger
	ran      atomic.Uint64
}

// NewExecutor creates an executor with no nodes.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Add attaches n. A node belongs to at most one executor.
func (e *Executor) Add(n *Node) error {
	if n.destroyed.Load() {
		return ErrNodeDestroyed
	}
	n.mu.Lock()
	if n.executor != nil {
		n.mu.Unlock()
		return fmt.Errorf("%s: %w", n.fqn, ErrNodeHasExecutor)
	}
	n.executor = e
	n.mu.Unlock()

	e.mu.Lock()
	e.nodes = append(e.nodes, n)
	e.mu.Unlock()

	n.queue.setNotify(e.signal)
	return nil
}

// Remove detaches n. Pending callbacks stay queued on the node.
func (e *Executor) Remove(n *Node) {
	e.mu.Lock()
	for i, m := range e.nodes {
		if m == n {
			e.nodes = append(e.nodes[:i:i], e.nodes[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	n.queue.setNotify(nil)
	n.mu.Lock()
	if n.executor == e {
		n.executor = nil
	}
	n.mu.Unlock()
}

// Nodes returns the attached nodes.
func (e *Executor) Nodes() []*Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Node, len(e.nodes))
	copy(out, e.nodes)
	return out
}

// Spinning reports whether Spin is running.
func (e *Executor) Spinning() bool {
	return e.spinning.Load()
}

// CallbacksRun returns the number of callbacks executed so far.
func (e *Executor) CallbacksRun() uint64 {
	return e.ran.Load()
}

// Spin runs callbacks until ctx ends. Only one Spin may run at a time.
func (e *Executor) Spin(ctx context.Context) error {
	if !e.spinning.CompareAndSwap(false, true) {
		return ErrExecutorRunning
	}
	defer e.spinning.Store(false)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if e.runOne() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		}
	}
}

// SpinOnce runs at most one callback, waiting up to timeout for one to
// become ready. Returns true if a callback ran.
func (e *Executor) SpinOnce(timeout time.Duration) bool {
	if e.runOne() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return e.runOne()
		case <-e.wake:
			if e.runOne() {
				return true
			}
		}
	}
}

// SpinUntilFutureComplete spins until f completes or ctx ends.
func (e *Executor) SpinUntilFutureComplete(ctx context.Context, f *Future) error {
	for !f.Completed() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.SpinOnce(10 * time.Millisecond)
	}
	return nil
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// runOne pops one callback round-robin across nodes and runs it.
func (e *Executor) runOne() bool {
	e.mu.Lock()
	count := len(e.nodes)
	var w *work
	var owner *Node
	for i := 0; i < count; i++ {
		n := e.nodes[(e.next+i)%count]
		if w = n.queue.pop(); w != nil {
			owner = n
			e.next = (e.next + i + 1) % count
			break
		}
	}
	e.mu.Unlock()

	if w == nil {
		return false
	}
	e.execute(owner, w)
	e.ran.Add(1)
	return true
}

func (e *Executor) execute(n *Node, w *work) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("callback panicked", "node", n.fqn, "panic", r)
		}
	}()
	if w.sub != nil {
		if w.sub.active.Load() {
			w.sub.callback(w.msg)
		}
		return
	}
	w.fn()
}
