// Package mock provides a scripted camera node for exercising test nodes
// without the simulator. Frames are injected explicitly and every service
// answer is scripted by the test.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/wire"
)

// Handler answers one scripted service call.
type Handler func(req []byte) ([]byte, error)

// Call records a service request received by the mock.
type Call struct {
	Service string
	Request []byte
	At      time.Time
}

// Camera is a bus node that looks like a camera to subscribers and
// clients: it publishes on <name>/image_raw and answers services under
// its namespace.
type Camera struct {
	node   *bus.Node
	exec   *bus.Executor
	pub    *bus.Publisher
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call

	seq    atomic.Uint32
	closed atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCamera creates the node /<name>/<name> on bctx and starts serving.
func NewCamera(bctx *bus.Context, name string) (*Camera, error) {
	node, err := bctx.NewNode(name, bus.WithNamespace(name))
	if err != nil {
		return nil, fmt.Errorf("mock camera: %w", err)
	}
	pub, err := node.CreatePublisher("image_raw")
	if err != nil {
		node.Destroy()
		return nil, fmt.Errorf("mock camera: %w", err)
	}

	c := &Camera{
		node:     node,
		exec:     bus.NewExecutor(bctx.Logger()),
		pub:      pub,
		logger:   bctx.Logger().With("mock", node.FullyQualifiedName()),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	if err := c.exec.Add(node); err != nil {
		node.Destroy()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		_ = c.exec.Spin(ctx)
	}()
	return c, nil
}

// Node returns the underlying bus node.
func (c *Camera) Node() *bus.Node { return c.node }

// ImageTopic returns the resolved image topic.
func (c *Camera) ImageTopic() string { return c.pub.Topic() }

// Published returns the number of injected samples.
func (c *Camera) Published() uint64 { return c.pub.Sent() }

// Inject publishes f. A zero Seq is replaced by the next sequence number
// and a zero Stamp by the current time.
func (c *Camera) Inject(f *frame.Frame) error {
	if c.closed.Load() {
		return ErrClosed
	}
	next := c.seq.Add(1)
	if f.Seq == 0 {
		f.Seq = next
	}
	if f.Stamp.IsZero() {
		f.Stamp = time.Now()
	}
	data, err := frame.Encode(f)
	if err != nil {
		return err
	}
	return c.pub.Publish(data)
}

// InjectRaw publishes data as-is, e.g. an undecodable sample.
func (c *Camera) InjectRaw(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.pub.Publish(data)
}

// HandleService scripts the answer of service, replacing any earlier
// script. The service is advertised on first use.
func (c *Camera) HandleService(service string, h Handler) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	_, advertised := c.handlers[service]
	c.handlers[service] = h
	c.mu.Unlock()
	if advertised {
		return nil
	}

	_, err := c.node.CreateService(service, func(_ context.Context, req []byte) ([]byte, error) {
		c.mu.Lock()
		c.calls = append(c.calls, Call{Service: service, Request: req, At: time.Now()})
		handler := c.handlers[service]
		c.mu.Unlock()
		if handler == nil {
			return nil, bus.Reject("%v", ErrNoHandler)
		}
		return handler(req)
	})
	if err != nil {
		c.mu.Lock()
		delete(c.handlers, service)
		c.mu.Unlock()
	}
	return err
}

// Respond scripts service to answer every call with resp.
func (c *Camera) Respond(service string, resp any) error {
	data, err := wire.Marshal(resp)
	if err != nil {
		return err
	}
	return c.HandleService(service, func([]byte) ([]byte, error) { return data, nil })
}

// Reject scripts service to refuse every call with message.
func (c *Camera) Reject(service, message string) error {
	return c.HandleService(service, func([]byte) ([]byte, error) {
		return nil, bus.Reject("%s", message)
	})
}

// Calls returns the recorded requests to service, or all requests if
// service is empty.
func (c *Camera) Calls(service string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if service == "" || call.Service == service {
			out = append(out, call)
		}
	}
	return out
}

// Close stops serving and destroys the node.
func (c *Camera) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	<-c.done
	c.node.Destroy()
	c.logger.Debug("mock camera closed")
	return nil
}
