package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/subscription"
	"github.com/camharness/camharness-go/pkg/transport"
	"github.com/camharness/camharness-go/pkg/wire"
)

// peer is the broker-side state of one client connection.
type peer struct {
	b     *Broker
	conn  *transport.Conn
	owner string

	mu       sync.Mutex
	nodes    map[string]struct{}
	topics   map[string]uint32
	services map[string]struct{}

	nextID    atomic.Uint32
	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Envelope
}

func newPeer(b *Broker, c *transport.Conn) *peer {
	return &peer{
		b:        b,
		conn:     c,
		owner:    "conn/" + c.ID(),
		nodes:    make(map[string]struct{}),
		topics:   make(map[string]uint32),
		services: make(map[string]struct{}),
		pending:  make(map[uint32]chan *wire.Envelope),
	}
}

// handleRequest runs a bookkeeping request inline on the read loop, so
// requests from one peer are applied in order.
func (p *peer) handleRequest(req *wire.Envelope) {
	var (
		payload []byte
		err     error
	)
	switch req.Op {
	case wire.OpHello:
		err = p.hello(req)
	case wire.OpBye:
		p.bye(req.Name)
	case wire.OpSubscribe:
		err = p.subscribe(req.Name)
	case wire.OpUnsubscribe:
		err = p.unsubscribe(req.Name)
	case wire.OpAdvertise:
		err = p.advertise(req.Name)
	case wire.OpWithdraw:
		err = p.withdraw(req.Name)
	case wire.OpListNodes:
		payload, err = p.list(p.b.graph.Nodes)
	case wire.OpListServices:
		payload, err = p.list(p.b.graph.Services)
	default:
		p.reply(wire.NewErrorResponse(req, wire.StatusInvalidRequest, "unsupported operation "+req.Op.String()))
		return
	}

	if err != nil {
		status, msg := bus.StatusOf(err)
		p.reply(wire.NewErrorResponse(req, status, msg))
		return
	}
	p.reply(wire.NewResponse(req, payload))
}

func (p *peer) hello(req *wire.Envelope) error {
	var hello wire.HelloPayload
	if len(req.Payload) > 0 {
		if err := wire.Unmarshal(req.Payload, &hello); err != nil {
			return bus.InvalidRequest("hello payload: %v", err)
		}
	}
	if err := p.b.graph.RegisterNode(req.Name); err != nil {
		return err
	}

	p.mu.Lock()
	p.nodes[req.Name] = struct{}{}
	p.mu.Unlock()
	if p.conn.NodeName() == "" {
		p.conn.SetNodeName(req.Name)
	}

	p.b.logger.Debug("node joined", "conn", p.conn.ID(), "node", req.Name, "client", hello.ClientID)
	p.b.announce()
	return nil
}

func (p *peer) bye(node string) {
	p.mu.Lock()
	_, ok := p.nodes[node]
	delete(p.nodes, node)
	p.mu.Unlock()
	if !ok {
		return
	}
	p.b.graph.UnregisterNode(node)
	p.b.logger.Debug("node left", "conn", p.conn.ID(), "node", node)
	p.b.announce()
}

// subscribe registers the peer's interest in topic. A peer holds at most
// one graph subscription per topic; its RemoteGraph fans out locally.
func (p *peer) subscribe(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.topics[topic]; ok {
		return nil
	}
	id, err := p.b.graph.Subscribe(topic, p.owner, 0, p.forwardSample)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidTopic) {
			return bus.InvalidRequest("%v", err)
		}
		return err
	}
	p.topics[topic] = id
	return nil
}

func (p *peer) unsubscribe(topic string) error {
	p.mu.Lock()
	id, ok := p.topics[topic]
	delete(p.topics, topic)
	p.mu.Unlock()
	if !ok {
		return &bus.ServiceError{Status: wire.StatusNotFound, Message: "not subscribed to " + topic}
	}
	return p.b.graph.Unsubscribe(id)
}

func (p *peer) forwardSample(s subscription.Sample) {
	if err := p.conn.Send(wire.NewPublish(s.Topic, s.Seq, s.Payload)); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		p.b.logger.Debug("publish forward failed", "conn", p.conn.ID(), "topic", s.Topic, "error", err)
	}
}

func (p *peer) advertise(service string) error {
	if err := p.b.graph.Advertise(service, p.owner, p.forwardCall(service)); err != nil {
		return err
	}
	p.mu.Lock()
	p.services[service] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *peer) withdraw(service string) error {
	p.mu.Lock()
	_, ok := p.services[service]
	delete(p.services, service)
	p.mu.Unlock()
	if !ok {
		return &bus.ServiceError{Status: wire.StatusNotFound, Message: "service not owned: " + service}
	}
	return p.b.graph.Withdraw(service)
}

func (p *peer) list(fn func(context.Context) ([]string, error)) ([]byte, error) {
	names, err := fn(context.Background())
	if err != nil {
		return nil, err
	}
	return wire.Marshal(&wire.NameListPayload{Names: names})
}

// call serves an OpCall from this peer against the graph.
func (p *peer) call(req *wire.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), p.b.config.CallTimeout)
	defer cancel()

	resp, err := p.b.graph.Call(ctx, req.Name, req.Payload)
	if err != nil {
		status, msg := bus.StatusOf(err)
		p.reply(wire.NewErrorResponse(req, status, msg))
		return
	}
	p.reply(wire.NewResponse(req, resp))
}

// forwardCall returns the graph handler for a service hosted by this peer.
func (p *peer) forwardCall(service string) bus.ServiceHandler {
	return func(ctx context.Context, req []byte) ([]byte, error) {
		id := p.nextID.Add(1)
		ch := make(chan *wire.Envelope, 1)

		p.pendingMu.Lock()
		p.pending[id] = ch
		p.pendingMu.Unlock()
		defer func() {
			p.pendingMu.Lock()
			delete(p.pending, id)
			p.pendingMu.Unlock()
		}()

		if err := p.conn.Send(wire.NewRequest(id, wire.OpCall, service, req)); err != nil {
			return nil, &bus.ServiceError{Service: service, Status: wire.StatusUnavailable, Message: err.Error()}
		}

		select {
		case resp := <-ch:
			if !resp.IsSuccess() {
				return nil, &bus.ServiceError{Service: service, Status: resp.Status, Message: resp.Error}
			}
			return resp.Payload, nil
		case <-p.conn.Done():
			return nil, &bus.ServiceError{Service: service, Status: wire.StatusUnavailable, Message: "service host disconnected"}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *peer) resolve(resp *wire.Envelope) {
	p.pendingMu.Lock()
	ch, ok := p.pending[resp.MessageID]
	p.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

func (p *peer) reply(env *wire.Envelope) {
	if err := p.conn.Send(env); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		p.b.logger.Debug("reply failed", "conn", p.conn.ID(), "name", env.Name, "error", err)
	}
}

// release removes everything the peer registered. Returns the number of
// nodes that were still registered.
func (p *peer) release() int {
	p.mu.Lock()
	nodes := p.nodes
	topics := p.topics
	services := p.services
	p.nodes = make(map[string]struct{})
	p.topics = make(map[string]uint32)
	p.services = make(map[string]struct{})
	p.mu.Unlock()

	for _, id := range topics {
		_ = p.b.graph.Unsubscribe(id)
	}
	for svc := range services {
		_ = p.b.graph.Withdraw(svc)
	}
	for node := range nodes {
		p.b.graph.UnregisterNode(node)
	}
	return len(nodes)
}
