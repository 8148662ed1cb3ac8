package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/subscription"
	"github.com/camharness/camharness-go/pkg/transport"
	"github.com/camharness/camharness-go/pkg/wire"
)

// DefaultRequestTimeout bounds broker bookkeeping requests (hello,
// subscribe, advertise) that have no caller context.
const DefaultRequestTimeout = 5 * time.Second

// RemoteConfig configures a RemoteGraph.
type RemoteConfig struct {
	// TLS enables TLS when non-nil.
	TLS *tls.Config

	Conn transport.ConnConfig

	// RequestTimeout bounds bookkeeping requests (default: 5s).
	RequestTimeout time.Duration

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures traffic; used when Conn.Logger is nil.
	ProtocolLogger log.Logger
}

// RemoteGraph is a Graph hosted by a broker and reached over transport.
type RemoteGraph struct {
	config   RemoteConfig
	conn     *transport.Conn
	logger   *slog.Logger
	clientID string

	nextID    atomic.Uint32
	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Envelope

	// subMu serializes upstream interest changes per topic.
	subMu sync.Mutex
	subs  *subscription.Manager

	svcMu    sync.RWMutex
	services map[string]serviceEntry

	closed atomic.Bool
}

// DialGraph connects to the broker at addr.
func DialGraph(ctx context.Context, addr string, config RemoteConfig) (*RemoteGraph, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Conn.Logger == nil {
		config.Conn.Logger = config.ProtocolLogger
	}

	g := &RemoteGraph{
		config:   config,
		logger:   config.Logger.With("broker", addr),
		clientID: uuid.New().String(),
		pending:  make(map[uint32]chan *wire.Envelope),
		subs:     subscription.NewManager(),
		services: make(map[string]serviceEntry),
	}

	conn, err := transport.Dial(ctx, addr, transport.ClientConfig{
		TLS:       config.TLS,
		Conn:      config.Conn,
		OnMessage: g.handleEnvelope,
		OnError: func(_ *transport.Conn, err error) {
			g.logger.Warn("broker connection error", "error", err)
		},
		OnDisconnect: func(*transport.Conn) {
			if !g.closed.Swap(true) {
				g.logger.Warn("broker connection lost")
			}
			g.subs.ClearAll()
		},
	})
	if err != nil {
		return nil, err
	}
	g.conn = conn
	return g, nil
}

// ClientID returns the UUID announced to the broker.
func (g *RemoteGraph) ClientID() string {
	return g.clientID
}

// Conn returns the underlying connection.
func (g *RemoteGraph) Conn() *transport.Conn {
	return g.conn
}

func (g *RemoteGraph) RegisterNode(name string) error {
	payload, err := wire.Marshal(&wire.HelloPayload{Node: name, ClientID: g.clientID})
	if err != nil {
		return err
	}
	ctx, cancel := g.bookkeepingCtx()
	defer cancel()
	if _, err := g.request(ctx, wire.OpHello, name, payload); err != nil {
		return err
	}
	if g.conn.NodeName() == "" {
		g.conn.SetNodeName(name)
	}
	return nil
}

func (g *RemoteGraph) UnregisterNode(name string) {
	g.subMu.Lock()
	before := g.subs.Topics()
	g.subs.UnsubscribeOwner(name)
	for _, topic := range before {
		if g.subs.CountTopic(topic) == 0 {
			g.bestEffort(wire.OpUnsubscribe, topic, nil)
		}
	}
	g.subMu.Unlock()

	g.svcMu.Lock()
	for svc, e := range g.services {
		if e.owner == name {
			delete(g.services, svc)
		}
	}
	g.svcMu.Unlock()

	// The broker drops the node's services with the name.
	g.bestEffort(wire.OpBye, name, nil)
}

func (g *RemoteGraph) Nodes(ctx context.Context) ([]string, error) {
	return g.list(ctx, wire.OpListNodes)
}

func (g *RemoteGraph) Subscribe(topic, owner string, depth int, deliver subscription.DeliverFunc) (uint32, error) {
	if g.closed.Load() {
		return 0, ErrGraphClosed
	}

	g.subMu.Lock()
	defer g.subMu.Unlock()

	id, err := g.subs.Subscribe(topic, owner, depth, deliver)
	if err != nil {
		return 0, err
	}
	if g.subs.CountTopic(topic) > 1 {
		return id, nil
	}

	payload, err := wire.Marshal(&wire.SubscribePayload{Depth: uint16(depth)})
	if err == nil {
		ctx, cancel := g.bookkeepingCtx()
		_, err = g.request(ctx, wire.OpSubscribe, topic, payload)
		cancel()
	}
	if err != nil {
		_ = g.subs.Unsubscribe(id)
		return 0, err
	}
	return id, nil
}

func (g *RemoteGraph) Unsubscribe(id uint32) error {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	sub, err := g.subs.Get(id)
	if err != nil {
		return err
	}
	if err := g.subs.Unsubscribe(id); err != nil {
		return err
	}
	if g.subs.CountTopic(sub.Topic) == 0 {
		g.bestEffort(wire.OpUnsubscribe, sub.Topic, nil)
	}
	return nil
}

func (g *RemoteGraph) Publish(topic string, payload []byte) error {
	if g.closed.Load() {
		return ErrGraphClosed
	}
	if err := subscription.ValidateTopic(topic); err != nil {
		return fmt.Errorf("%w: %q", err, topic)
	}
	return g.conn.Send(wire.NewPublish(topic, 0, payload))
}

func (g *RemoteGraph) Advertise(service, owner string, handler ServiceHandler) error {
	g.svcMu.Lock()
	if _, taken := g.services[service]; taken {
		g.svcMu.Unlock()
		return fmt.Errorf("%w: service %s", ErrNameInUse, service)
	}
	g.services[service] = serviceEntry{owner: owner, handler: handler}
	g.svcMu.Unlock()

	ctx, cancel := g.bookkeepingCtx()
	defer cancel()
	if _, err := g.request(ctx, wire.OpAdvertise, service, nil); err != nil {
		g.svcMu.Lock()
		delete(g.services, service)
		g.svcMu.Unlock()
		return err
	}
	return nil
}

func (g *RemoteGraph) Withdraw(service string) error {
	g.svcMu.Lock()
	_, ok := g.services[service]
	delete(g.services, service)
	g.svcMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	g.bestEffort(wire.OpWithdraw, service, nil)
	return nil
}

func (g *RemoteGraph) Services(ctx context.Context) ([]string, error) {
	return g.list(ctx, wire.OpListServices)
}

func (g *RemoteGraph) Call(ctx context.Context, service string, req []byte) ([]byte, error) {
	resp, err := g.request(ctx, wire.OpCall, service, req)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// Close disconnects from the broker.
func (g *RemoteGraph) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	err := g.conn.Close()
	<-g.conn.Done()
	return err
}

func (g *RemoteGraph) list(ctx context.Context, op wire.Op) ([]string, error) {
	resp, err := g.request(ctx, op, "", nil)
	if err != nil {
		return nil, err
	}
	var names wire.NameListPayload
	if err := wire.Unmarshal(resp.Payload, &names); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return names.Names, nil
}

func (g *RemoteGraph) bookkeepingCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.config.RequestTimeout)
}

// bestEffort issues a request whose failure only warrants a log line.
func (g *RemoteGraph) bestEffort(op wire.Op, name string, payload []byte) {
	if g.closed.Load() {
		return
	}
	ctx, cancel := g.bookkeepingCtx()
	defer cancel()
	if _, err := g.request(ctx, op, name, payload); err != nil {
		g.logger.Debug("broker request failed", "op", op, "name", name, "error", err)
	}
}

// request sends a request and waits for the matching response.
func (g *RemoteGraph) request(ctx context.Context, op wire.Op, name string, payload []byte) (*wire.Envelope, error) {
	if g.closed.Load() {
		return nil, ErrGraphClosed
	}

	id := g.nextID.Add(1)
	if id == 0 {
		id = g.nextID.Add(1)
	}
	ch := make(chan *wire.Envelope, 1)

	g.pendingMu.Lock()
	g.pending[id] = ch
	g.pendingMu.Unlock()
	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, id)
		g.pendingMu.Unlock()
	}()

	if err := g.conn.Send(wire.NewRequest(id, op, name, payload)); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, name, err)
	}

	select {
	case resp := <-ch:
		if resp.IsSuccess() {
			return resp, nil
		}
		return nil, responseError(op, name, resp)
	case <-g.conn.Done():
		return nil, ErrGraphClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// responseError converts a failed response into the error the local
// Graph implementation would have returned.
func responseError(op wire.Op, name string, resp *wire.Envelope) error {
	if op == wire.OpCall {
		return &ServiceError{Service: name, Status: resp.Status, Message: resp.Error}
	}
	switch resp.Status {
	case wire.StatusAlreadyExists:
		return fmt.Errorf("%w: %s", ErrNameInUse, name)
	case wire.StatusInvalidRequest:
		return fmt.Errorf("%w: %s: %s", ErrInvalidName, name, resp.Error)
	case wire.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	default:
		return fmt.Errorf("%s %s: %s: %s", op, name, resp.Status, resp.Error)
	}
}

func (g *RemoteGraph) handleEnvelope(c *transport.Conn, env *wire.Envelope) {
	switch env.Kind {
	case wire.KindResponse:
		g.pendingMu.Lock()
		ch, ok := g.pending[env.MessageID]
		g.pendingMu.Unlock()
		if ok {
			ch <- env
		}

	case wire.KindPublish:
		g.subs.DispatchSample(subscription.Sample{
			Topic:       env.Name,
			Seq:         env.Sequence,
			Payload:     env.Payload,
			PublishedAt: time.Now(),
		})

	case wire.KindRequest:
		if env.Op != wire.OpCall {
			_ = c.Send(wire.NewErrorResponse(env, wire.StatusInvalidRequest, "unexpected operation "+env.Op.String()))
			return
		}
		go g.serve(c, env)
	}
}

// serve answers a call the broker forwarded to a service hosted here.
func (g *RemoteGraph) serve(c *transport.Conn, req *wire.Envelope) {
	g.svcMu.RLock()
	entry, ok := g.services[req.Name]
	g.svcMu.RUnlock()
	if !ok {
		_ = c.Send(wire.NewErrorResponse(req, wire.StatusNotFound, "no such service"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.config.RequestTimeout)
	defer cancel()

	resp, err := entry.handler(ctx, req.Payload)
	var out *wire.Envelope
	if err != nil {
		status, msg := StatusOf(err)
		out = wire.NewErrorResponse(req, status, msg)
	} else {
		out = wire.NewResponse(req, resp)
	}
	if err := c.Send(out); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		g.logger.Warn("failed to answer call", "service", req.Name, "error", err)
	}
}

var _ Graph = (*RemoteGraph)(nil)
