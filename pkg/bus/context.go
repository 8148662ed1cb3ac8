package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/camharness/camharness-go/pkg/log"
)

// Option configures Init.
type Option func(*options)

type options struct {
	graph     Graph
	ownsGraph bool
	broker    string
	remote    RemoteConfig
	logger    *slog.Logger
	plog      log.Logger
}

// WithGraph attaches the context to an existing graph. The graph is not
// closed by Shutdown.
func WithGraph(g Graph) Option {
	return func(o *options) {
		o.graph = g
		o.ownsGraph = false
	}
}

// WithBroker connects the context to a broker at addr. The resulting
// RemoteGraph is closed by Shutdown.
func WithBroker(addr string, config RemoteConfig) Option {
	return func(o *options) {
		o.broker = addr
		o.remote = config
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProtocolLogger captures bus state events.
func WithProtocolLogger(l log.Logger) Option {
	return func(o *options) { o.plog = l }
}

// Context is the scoped messaging runtime. Create it with Init and always
// release it with Shutdown.
type Context struct {
	graph     Graph
	ownsGraph bool
	logger    *slog.Logger
	plog      log.Logger

	mu       sync.Mutex
	nodes    map[*Node]struct{}
	shutdown atomic.Bool
}

// Init acquires a runtime. Without options it uses a fresh LocalGraph.
func Init(ctx context.Context, opts ...Option) (*Context, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.remote.Logger == nil {
		o.remote.Logger = o.logger
	}
	if o.remote.ProtocolLogger == nil {
		o.remote.ProtocolLogger = o.plog
	}

	switch {
	case o.graph != nil:
	case o.broker != "":
		rg, err := DialGraph(ctx, o.broker, o.remote)
		if err != nil {
			return nil, fmt.Errorf("bus init: %w", err)
		}
		o.graph, o.ownsGraph = rg, true
	default:
		o.graph, o.ownsGraph = NewLocalGraph(), true
	}

	return &Context{
		graph:     o.graph,
		ownsGraph: o.ownsGraph,
		logger:    o.logger,
		plog:      o.plog,
		nodes:     make(map[*Node]struct{}),
	}, nil
}

// OK reports whether the runtime is usable.
func (c *Context) OK() bool {
	return !c.shutdown.Load()
}

// Graph returns the underlying graph.
func (c *Context) Graph() Graph {
	return c.graph
}

// Logger returns the operational logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// NewNode creates a node named name.
func (c *Context) NewNode(name string, opts ...NodeOption) (*Node, error) {
	if !c.OK() {
		return nil, ErrShutdown
	}
	n, err := newNode(c, name, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.shutdown.Load() {
		c.mu.Unlock()
		n.Destroy()
		return nil, ErrShutdown
	}
	c.nodes[n] = struct{}{}
	c.mu.Unlock()
	return n, nil
}

// NodeCount returns the number of live nodes created from this context.
func (c *Context) NodeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

func (c *Context) forget(n *Node) {
	c.mu.Lock()
	delete(c.nodes, n)
	c.mu.Unlock()
}

// Shutdown destroys every remaining node and closes an owned graph.
// Idempotent; only the first call does work.
func (c *Context) Shutdown() error {
	if c.shutdown.Swap(true) {
		return nil
	}

	c.mu.Lock()
	nodes := make([]*Node, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	for _, n := range nodes {
		n.Destroy()
	}

	if c.ownsGraph {
		if err := c.graph.Close(); err != nil && !errors.Is(err, ErrGraphClosed) {
			return fmt.Errorf("bus shutdown: %w", err)
		}
	}
	return nil
}
