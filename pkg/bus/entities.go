package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/subscription"
)

// Message is a sample delivered to a subscription callback.
type Message struct {
	Topic       string
	Seq         uint32
	Data        []byte
	PublishedAt time.Time
	ReceivedAt  time.Time
}

// Subscription is a node's registration on a topic.
type Subscription struct {
	node     *Node
	topic    string
	depth    int
	callback func(Message)
	graphID  uint32

	active   atomic.Bool
	received atomic.Uint64
	dropped  atomic.Uint64
}

// Topic returns the resolved topic name.
func (s *Subscription) Topic() string { return s.topic }

// Depth returns the history depth.
func (s *Subscription) Depth() int { return s.depth }

// Active reports whether the subscription is still live.
func (s *Subscription) Active() bool { return s.active.Load() }

// Received returns the number of samples that reached the node.
func (s *Subscription) Received() uint64 { return s.received.Load() }

// Dropped returns the number of samples discarded by the depth limit.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) deliver(sample subscription.Sample) {
	msg := Message{
		Topic:       sample.Topic,
		Seq:         sample.Seq,
		Data:        sample.Payload,
		PublishedAt: sample.PublishedAt,
		ReceivedAt:  time.Now(),
	}
	if s.node.queue.pushMessage(s, msg) {
		s.received.Add(1)
	}
}

// Publisher sends samples on one topic.
type Publisher struct {
	node  *Node
	topic string
	sent  atomic.Uint64
}

// Topic returns the resolved topic name.
func (p *Publisher) Topic() string { return p.topic }

// Sent returns the number of samples published.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// Publish sends data to every current subscriber.
func (p *Publisher) Publish(data []byte) error {
	if p.node.destroyed.Load() {
		return ErrNodeDestroyed
	}
	if err := p.node.graph.Publish(p.topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	p.sent.Add(1)
	return nil
}

// Service is a service server hosted by a node.
type Service struct {
	node    *Node
	name    string
	handled atomic.Uint64
}

// Name returns the resolved service name.
func (s *Service) Name() string { return s.name }

// Handled returns the number of requests answered.
func (s *Service) Handled() uint64 { return s.handled.Load() }

// Client calls one service.
type Client struct {
	node    *Node
	service string
}

// Service returns the resolved service name.
func (c *Client) Service() string { return c.service }

// CallAsync starts a call and returns immediately. The future is resolved
// on the node's executor.
func (c *Client) CallAsync(ctx context.Context, req []byte) *Future {
	f := newFuture()
	if c.node.destroyed.Load() {
		f.set(nil, ErrNodeDestroyed)
		return f
	}

	go func() {
		resp, err := c.node.graph.Call(ctx, c.service, req)
		if !c.node.queue.pushFunc(func() { f.set(resp, err) }) {
			f.set(nil, ErrNodeDestroyed)
		}
	}()
	return f
}

// Call invokes the service and blocks until the future resolves or ctx
// ends. Remote failures are returned as *ServiceError.
func (c *Client) Call(ctx context.Context, req []byte) ([]byte, error) {
	return c.CallAsync(ctx, req).Wait(ctx)
}

// ServiceIsReady reports whether the service is currently advertised.
func (c *Client) ServiceIsReady(ctx context.Context) (bool, error) {
	names, err := c.node.graph.Services(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == c.service {
			return true, nil
		}
	}
	return false, nil
}

// WaitForService polls until the service is advertised or ctx ends.
func (c *Client) WaitForService(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ready, err := c.ServiceIsReady(ctx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", c.service, ctx.Err())
		case <-ticker.C:
		}
	}
}
