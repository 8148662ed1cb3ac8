package bus

import (
	"container/list"
	"sync"
)

// work is one queued callback. Exactly one of sub or fn is set.
type work struct {
	sub *Subscription
	msg Message
	fn  func()
}

// callbackQueue is a node's FIFO of pending callbacks.
type callbackQueue struct {
	mu      sync.Mutex
	items   *list.List
	pending map[*Subscription]int
	notify  func()
	closed  bool
}

func newCallbackQueue() *callbackQueue {
	return &callbackQueue{
		items:   list.New(),
		pending: make(map[*Subscription]int),
	}
}

// setNotify installs the executor wake-up hook.
func (q *callbackQueue) setNotify(fn func()) {
	q.mu.Lock()
	q.notify = fn
	nonEmpty := q.items.Len() > 0
	q.mu.Unlock()
	if fn != nil && nonEmpty {
		fn()
	}
}

// pushMessage queues a sample for sub, dropping the oldest pending sample
// of the same subscription when depth is reached. Returns false if the
// sample was discarded because sub is inactive or the queue is closed.
func (q *callbackQueue) pushMessage(sub *Subscription, msg Message) bool {
	q.mu.Lock()
	if q.closed || !sub.active.Load() {
		q.mu.Unlock()
		return false
	}
	if q.pending[sub] >= sub.depth {
		for e := q.items.Front(); e != nil; e = e.Next() {
			if e.Value.(*work).sub == sub {
				q.items.Remove(e)
				q.pending[sub]--
				sub.dropped.Add(1)
				break
			}
		}
	}
	q.items.PushBack(&work{sub: sub, msg: msg})
	q.pending[sub]++
	notify := q.notify
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// pushFunc queues an arbitrary callback. Returns false if closed.
func (q *callbackQueue) pushFunc(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.PushBack(&work{fn: fn})
	notify := q.notify
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// pop removes the head callback, or returns nil.
func (q *callbackQueue) pop() *work {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.items.Front()
	if e == nil {
		return nil
	}
	q.items.Remove(e)
	w := e.Value.(*work)
	if w.sub != nil {
		if q.pending[w.sub]--; q.pending[w.sub] <= 0 {
			delete(q.pending, w.sub)
		}
	}
	return w
}

// deactivate marks sub inactive and discards its pending samples, under
// the queue lock so no later pushMessage can slip in. Returns the number
// discarded.
func (q *callbackQueue) deactivate(sub *Subscription) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	sub.active.Store(false)
	n := 0
	for e := q.items.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*work).sub == sub {
			q.items.Remove(e)
			n++
		}
		e = next
	}
	delete(q.pending, sub)
	return n
}

// close discards everything and rejects further pushes. Waiters on
// discarded callbacks must also watch the node's done channel.
func (q *callbackQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items.Init()
	q.pending = make(map[*Subscription]int)
}

func (q *callbackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
