package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/camharness/camharness-go/pkg/subscription"
	"github.com/camharness/camharness-go/pkg/wire"
)

// ServiceHandler answers a service request. Returned errors are delivered
// to the caller as *ServiceError (see Reject).
type ServiceHandler func(ctx context.Context, req []byte) ([]byte, error)

// Graph is the fabric nodes attach to. All names are fully qualified.
type Graph interface {
	// RegisterNode claims a node name. Fails with ErrNameInUse.
	RegisterNode(name string) error

	// UnregisterNode releases a node name and everything it owns.
	UnregisterNode(name string)

	// Nodes returns the registered node names, sorted.
	Nodes(ctx context.Context) ([]string, error)

	// Subscribe registers deliver for topic on behalf of owner.
	// deliver runs on the publisher's goroutine and must not block.
	Subscribe(topic, owner string, depth int, deliver subscription.DeliverFunc) (uint32, error)

	// Unsubscribe removes a subscription created by Subscribe.
	Unsubscribe(id uint32) error

	// Publish sends payload to every subscriber of topic.
	Publish(topic string, payload []byte) error

	// Advertise makes a service available. Fails with ErrNameInUse.
	Advertise(service, owner string, handler ServiceHandler) error

	// Withdraw removes a service.
	Withdraw(service string) error

	// Services returns the advertised service names, sorted.
	Services(ctx context.Context) ([]string, error)

	// Call invokes a service and waits for its answer.
	Call(ctx context.Context, service string, req []byte) ([]byte, error)

	// Close releases the graph. Further calls fail with ErrGraphClosed.
	Close() error
}

type serviceEntry struct {
	owner   string
	handler ServiceHandler
}

// LocalGraph is an in-process Graph.
type LocalGraph struct {
	mu       sync.RWMutex
	nodes    map[string]struct{}
	services map[string]serviceEntry
	subs     *subscription.Manager
	closed   bool
}

// NewLocalGraph creates an empty in-process graph.
func NewLocalGraph() *LocalGraph {
	return NewLocalGraphWithConfig(subscription.DefaultConfig())
}

// NewLocalGraphWithConfig creates a graph with custom subscription limits.
func NewLocalGraphWithConfig(config subscription.Config) *LocalGraph {
	return &LocalGraph{
		nodes:    make(map[string]struct{}),
		services: make(map[string]serviceEntry),
		subs:     subscription.NewManagerWithConfig(config),
	}
}

// Subscriptions exposes the subscription registry.
func (g *LocalGraph) Subscriptions() *subscription.Manager {
	return g.subs
}

func (g *LocalGraph) RegisterNode(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGraphClosed
	}
	if _, taken := g.nodes[name]; taken {
		return fmt.Errorf("%w: node %s", ErrNameInUse, name)
	}
	g.nodes[name] = struct{}{}
	return nil
}

func (g *LocalGraph) UnregisterNode(name string) {
	g.mu.Lock()
	delete(g.nodes, name)
	for svc, e := range g.services {
		if e.owner == name {
			delete(g.services, svc)
		}
	}
	g.mu.Unlock()

	g.subs.UnsubscribeOwner(name)
}

func (g *LocalGraph) Nodes(context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrGraphClosed
	}
	return sortedKeys(g.nodes), nil
}

func (g *LocalGraph) Subscribe(topic, owner string, depth int, deliver subscription.DeliverFunc) (uint32, error) {
	if g.isClosed() {
		return 0, ErrGraphClosed
	}
	return g.subs.Subscribe(topic, owner, depth, deliver)
}

func (g *LocalGraph) Unsubscribe(id uint32) error {
	return g.subs.Unsubscribe(id)
}

func (g *LocalGraph) Publish(topic string, payload []byte) error {
	if g.isClosed() {
		return ErrGraphClosed
	}
	if err := subscription.ValidateTopic(topic); err != nil {
		return fmt.Errorf("%w: %q", err, topic)
	}
	g.subs.Dispatch(topic, payload)
	return nil
}

func (g *LocalGraph) Advertise(service, owner string, handler ServiceHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGraphClosed
	}
	if _, taken := g.services[service]; taken {
		return fmt.Errorf("%w: service %s", ErrNameInUse, service)
	}
	g.services[service] = serviceEntry{owner: owner, handler: handler}
	return nil
}

func (g *LocalGraph) Withdraw(service string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.services[service]; !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	delete(g.services, service)
	return nil
}

func (g *LocalGraph) Services(context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrGraphClosed
	}
	names := make([]string, 0, len(g.services))
	for name := range g.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *LocalGraph) Call(ctx context.Context, service string, req []byte) ([]byte, error) {
	g.mu.RLock()
	closed := g.closed
	entry, ok := g.services[service]
	g.mu.RUnlock()

	if closed {
		return nil, ErrGraphClosed
	}
	if !ok {
		return nil, &ServiceError{Service: service, Status: wire.StatusNotFound, Message: "no such service"}
	}

	resp, err := entry.handler(ctx, req)
	if err != nil {
		return nil, asServiceError(service, err)
	}
	return resp, nil
}

func (g *LocalGraph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.nodes = make(map[string]struct{})
	g.services = make(map[string]serviceEntry)
	g.mu.Unlock()

	g.subs.ClearAll()
	return nil
}

func (g *LocalGraph) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Graph = (*LocalGraph)(nil)
