package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

// NodeOption configures a node at creation.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	namespace string
	remaps    map[string]string
}

// WithNamespace places the node in ns.
func WithNamespace(ns string) NodeOption {
	return func(o *nodeOptions) { o.namespace = ns }
}

// WithRemap rewrites topic or service name from to to before resolution.
// Both forms (as written and fully resolved) are matched.
func WithRemap(from, to string) NodeOption {
	return func(o *nodeOptions) {
		if o.remaps == nil {
			o.remaps = make(map[string]string)
		}
		o.remaps[from] = to
	}
}

// WithRemaps applies several remappings.
func WithRemaps(remaps map[string]string) NodeOption {
	return func(o *nodeOptions) {
		for from, to := range remaps {
			WithRemap(from, to)(o)
		}
	}
}

// Node is a named participant on the graph.
type Node struct {
	name      string
	namespace string
	fqn       string
	remaps    map[string]string

	bctx   *Context
	graph  Graph
	logger *slog.Logger
	plog   log.Logger
	queue  *callbackQueue

	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	services map[*Service]struct{}
	pubs     map[*Publisher]struct{}
	executor *Executor

	destroyed atomic.Bool
	done      chan struct{}
}

func newNode(bctx *Context, name string, opts ...NodeOption) (*Node, error) {
	o := nodeOptions{namespace: "/"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ValidateNodeName(name); err != nil {
		return nil, err
	}
	ns, err := NormalizeNamespace(o.namespace)
	if err != nil {
		return nil, err
	}

	fqn := FullyQualified(ns, name)
	if err := bctx.graph.RegisterNode(fqn); err != nil {
		return nil, fmt.Errorf("create node %s: %w", fqn, err)
	}

	n := &Node{
		name:      name,
		namespace: ns,
		fqn:       fqn,
		remaps:    o.remaps,
		bctx:      bctx,
		graph:     bctx.graph,
		logger:    bctx.logger.With("node", fqn),
		plog:      bctx.plog,
		queue:     newCallbackQueue(),
		subs:      make(map[*Subscription]struct{}),
		services:  make(map[*Service]struct{}),
		pubs:      make(map[*Publisher]struct{}),
		done:      make(chan struct{}),
	}
	n.logState(log.StateEntityNode, "", "ACTIVE", "")
	return n, nil
}

// Name returns the base node name.
func (n *Node) Name() string { return n.name }

// Namespace returns the node's namespace.
func (n *Node) Namespace() string { return n.namespace }

// FullyQualifiedName returns namespace + "/" + name.
func (n *Node) FullyQualifiedName() string { return n.fqn }

// Logger returns the node's operational logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Pending returns the number of queued callbacks.
func (n *Node) Pending() int { return n.queue.len() }

// Destroyed reports whether Destroy has been called.
func (n *Node) Destroyed() bool { return n.destroyed.Load() }

// Resolve expands a topic or service name for this node, applying remaps.
func (n *Node) Resolve(name string) (string, error) {
	if to, ok := n.remaps[name]; ok {
		name = to
	}
	resolved, err := ResolveName(n.namespace, n.name, name)
	if err != nil {
		return "", err
	}
	if to, ok := n.remaps[resolved]; ok {
		return ResolveName(n.namespace, n.name, to)
	}
	return resolved, nil
}

// CreateSubscription subscribes callback to topic with the given history
// depth. callback runs on the node's executor.
func (n *Node) CreateSubscription(topic string, depth int, callback func(Message)) (*Subscription, error) {
	if n.destroyed.Load() {
		return nil, ErrNodeDestroyed
	}
	resolved, err := n.Resolve(topic)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}

	sub := &Subscription{node: n, topic: resolved, depth: depth, callback: callback}
	sub.active.Store(true)

	id, err := n.graph.Subscribe(resolved, n.fqn, depth, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", resolved, err)
	}
	sub.graphID = id

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	n.logger.Debug("subscription created", "topic", resolved, "depth", depth)
	n.logState(log.StateEntitySubscription, "", "ACTIVE", resolved)
	return sub, nil
}

// DestroySubscription removes sub. After it returns no new sample for sub
// is queued, and pending ones are discarded; a callback already running
// on the executor may still finish (see Barrier). Returns false if sub is
// not owned by this node or was already destroyed.
func (n *Node) DestroySubscription(sub *Subscription) bool {
	n.mu.Lock()
	_, owned := n.subs[sub]
	delete(n.subs, sub)
	n.mu.Unlock()
	if !owned {
		return false
	}

	discarded := n.queue.deactivate(sub)
	if err := n.graph.Unsubscribe(sub.graphID); err != nil {
		n.logger.Warn("unsubscribe failed", "topic", sub.topic, "error", err)
	}

	n.logger.Debug("subscription destroyed", "topic", sub.topic, "discarded", discarded)
	n.logState(log.StateEntitySubscription, "ACTIVE", "DESTROYED", sub.topic)
	return true
}

// CreatePublisher creates a publisher on topic.
func (n *Node) CreatePublisher(topic string) (*Publisher, error) {
	if n.destroyed.Load() {
		return nil, ErrNodeDestroyed
	}
	resolved, err := n.Resolve(topic)
	if err != nil {
		return nil, err
	}
	p := &Publisher{node: n, topic: resolved}
	n.mu.Lock()
	n.pubs[p] = struct{}{}
	n.mu.Unlock()
	return p, nil
}

// CreateService advertises handler under name. Requests are handled on
// the node's executor.
func (n *Node) CreateService(name string, handler ServiceHandler) (*Service, error) {
	if n.destroyed.Load() {
		return nil, ErrNodeDestroyed
	}
	resolved, err := n.Resolve(name)
	if err != nil {
		return nil, err
	}

	svc := &Service{node: n, name: resolved}
	if err := n.graph.Advertise(resolved, n.fqn, n.invoker(svc, handler)); err != nil {
		return nil, fmt.Errorf("advertise %s: %w", resolved, err)
	}

	n.mu.Lock()
	n.services[svc] = struct{}{}
	n.mu.Unlock()

	n.logger.Debug("service created", "service", resolved)
	return svc, nil
}

// DestroyService withdraws svc. Returns false if not owned.
func (n *Node) DestroyService(svc *Service) bool {
	n.mu.Lock()
	_, owned := n.services[svc]
	delete(n.services, svc)
	n.mu.Unlock()
	if !owned {
		return false
	}
	if err := n.graph.Withdraw(svc.name); err != nil {
		n.logger.Warn("withdraw failed", "service", svc.name, "error", err)
	}
	return true
}

// invoker hops a graph-level call onto this node's executor.
func (n *Node) invoker(svc *Service, handler ServiceHandler) ServiceHandler {
	type result struct {
		resp []byte
		err  error
	}
	return func(ctx context.Context, req []byte) ([]byte, error) {
		ch := make(chan result, 1)
		queued := n.queue.pushFunc(func() {
			resp, err := handler(ctx, req)
			svc.handled.Add(1)
			ch <- result{resp, err}
		})
		if !queued {
			return nil, &ServiceError{Service: svc.name, Status: wire.StatusUnavailable, Message: ErrNodeDestroyed.Error()}
		}
		select {
		case r := <-ch:
			return r.resp, r.err
		case <-n.done:
			return nil, &ServiceError{Service: svc.name, Status: wire.StatusUnavailable, Message: ErrNodeDestroyed.Error()}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CreateClient creates a client for service.
func (n *Node) CreateClient(service string) (*Client, error) {
	if n.destroyed.Load() {
		return nil, ErrNodeDestroyed
	}
	resolved, err := n.Resolve(service)
	if err != nil {
		return nil, err
	}
	return &Client{node: n, service: resolved}, nil
}

// Barrier waits until every callback queued before the call has finished
// running on the executor.
func (n *Node) Barrier(ctx context.Context) error {
	reached := make(chan struct{})
	if !n.queue.pushFunc(func() { close(reached) }) {
		return ErrNodeDestroyed
	}
	select {
	case <-reached:
		return nil
	case <-n.done:
		return ErrNodeDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy removes every entity, drops pending callbacks and releases the
// node name. Idempotent.
func (n *Node) Destroy() {
	if n.destroyed.Swap(true) {
		return
	}

	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for s := range n.subs {
		subs = append(subs, s)
	}
	svcs := make([]*Service, 0, len(n.services))
	for s := range n.services {
		svcs = append(svcs, s)
	}
	exec := n.executor
	n.mu.Unlock()

	for _, s := range subs {
		n.DestroySubscription(s)
	}
	for _, s := range svcs {
		n.DestroyService(s)
	}

	n.queue.close()
	close(n.done)

	if exec != nil {
		exec.Remove(n)
	}
	n.graph.UnregisterNode(n.fqn)
	n.bctx.forget(n)

	n.logState(log.StateEntityNode, "ACTIVE", "DESTROYED", "")
	n.logger.Debug("node destroyed")
}

func (n *Node) logState(entity log.StateEntity, oldState, newState, reason string) {
	if n.plog == nil {
		return
	}
	n.plog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerBus,
		Category:  log.CategoryState,
		NodeName:  n.fqn,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
