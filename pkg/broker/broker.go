package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/discovery"
	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/subscription"
	"github.com/camharness/camharness-go/pkg/transport"
	"github.com/camharness/camharness-go/pkg/wire"
)

// DefaultCallTimeout bounds a forwarded service call.
const DefaultCallTimeout = 10 * time.Second

// ErrNotRunning is returned by operations that need a started broker.
var ErrNotRunning = errors.New("broker not running")

// Config configures a Broker.
type Config struct {
	// Address to listen on (default ":7447").
	Address string

	// TLS enables TLS when non-nil.
	TLS *tls.Config

	Conn transport.ConnConfig

	// CallTimeout bounds a forwarded service call (default 10s).
	CallTimeout time.Duration

	Subscriptions subscription.Config

	// InstanceID names the broker in mDNS (default: random UUID).
	InstanceID string

	// Advertiser publishes the broker via mDNS when non-nil.
	Advertiser discovery.Advertiser

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		Address:       fmt.Sprintf(":%d", transport.DefaultPort),
		CallTimeout:   DefaultCallTimeout,
		Subscriptions: subscription.DefaultConfig(),
	}
}

// Broker bridges remote nodes onto a local graph.
type Broker struct {
	config Config
	graph  *bus.LocalGraph
	server *transport.Server
	logger *slog.Logger

	mu    sync.Mutex
	peers map[*transport.Conn]*peer

	running atomic.Bool
}

// New creates a broker. It does not listen until Start.
func New(config Config) *Broker {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.Subscriptions.MaxSubscriptions == 0 {
		config.Subscriptions = subscription.DefaultConfig()
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Conn.Logger == nil {
		config.Conn.Logger = config.ProtocolLogger
	}

	b := &Broker{
		config: config,
		graph:  bus.NewLocalGraphWithConfig(config.Subscriptions),
		logger: config.Logger.With("broker", config.InstanceID),
		peers:  make(map[*transport.Conn]*peer),
	}
	b.server = transport.NewServer(transport.ServerConfig{
		Address:      config.Address,
		TLS:          config.TLS,
		Conn:         config.Conn,
		OnConnect:    b.handleConnect,
		OnDisconnect: b.handleDisconnect,
		OnMessage:    b.handleEnvelope,
		OnError: func(c *transport.Conn, err error) {
			if c != nil {
				b.logger.Debug("connection error", "conn", c.ID(), "error", err)
				return
			}
			b.logger.Warn("server error", "error", err)
		},
	})
	return b
}

// Start listens and, if configured, advertises the broker.
func (b *Broker) Start(ctx context.Context) error {
	if err := b.server.Start(ctx); err != nil {
		return err
	}
	b.running.Store(true)

	if b.config.Advertiser != nil {
		if err := b.config.Advertiser.Advertise(ctx, b.info()); err != nil {
			_ = b.Stop()
			return fmt.Errorf("advertise broker: %w", err)
		}
	}

	b.logger.Info("broker started", "addr", b.Addr().String())
	return nil
}

// Stop withdraws the advertisement, disconnects every peer and closes the
// graph.
func (b *Broker) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}
	if b.config.Advertiser != nil {
		if err := b.config.Advertiser.Stop(); err != nil {
			b.logger.Warn("stop advertising failed", "error", err)
		}
	}
	err := b.server.Stop()
	_ = b.graph.Close()
	b.logger.Info("broker stopped")
	return err
}

// Addr returns the listen address, or nil before Start.
func (b *Broker) Addr() net.Addr {
	return b.server.Addr()
}

// Graph returns the hosted graph. Nodes in the broker process attach to
// it with bus.WithGraph.
func (b *Broker) Graph() *bus.LocalGraph {
	return b.graph
}

// InstanceID returns the broker's instance ID.
func (b *Broker) InstanceID() string {
	return b.config.InstanceID
}

// PeerCount returns the number of connected peers.
func (b *Broker) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

func (b *Broker) info() *discovery.BrokerInfo {
	info := &discovery.BrokerInfo{
		InstanceID: b.config.InstanceID,
		Version:    discovery.ProtocolVersion,
	}
	if tcp, ok := b.Addr().(*net.TCPAddr); ok {
		info.Port = uint16(tcp.Port)
	}
	if nodes, err := b.graph.Nodes(context.Background()); err == nil {
		info.NodeCount = len(nodes)
	}
	return info
}

// announce refreshes the node count in the mDNS TXT records.
func (b *Broker) announce() {
	if b.config.Advertiser == nil || !b.running.Load() {
		return
	}
	if err := b.config.Advertiser.Update(b.info()); err != nil {
		b.logger.Debug("advertisement update failed", "error", err)
	}
}

func (b *Broker) handleConnect(c *transport.Conn) {
	p := newPeer(b, c)
	b.mu.Lock()
	b.peers[c] = p
	b.mu.Unlock()
	b.logger.Debug("peer connected", "conn", c.ID(), "remote", c.RemoteAddr().String())
}

func (b *Broker) handleDisconnect(c *transport.Conn) {
	b.mu.Lock()
	p, ok := b.peers[c]
	delete(b.peers, c)
	b.mu.Unlock()
	if !ok {
		return
	}
	nodes := p.release()
	if nodes > 0 {
		b.announce()
	}
	b.logger.Debug("peer disconnected", "conn", c.ID(), "nodes", nodes)
}

func (b *Broker) peerFor(c *transport.Conn) *peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peers[c]
}

func (b *Broker) handleEnvelope(c *transport.Conn, env *wire.Envelope) {
	p := b.peerFor(c)
	if p == nil {
		return
	}
	switch env.Kind {
	case wire.KindRequest:
		if env.Op == wire.OpCall {
			go p.call(env)
			return
		}
		p.handleRequest(env)
	case wire.KindResponse:
		p.resolve(env)
	case wire.KindPublish:
		if err := b.graph.Publish(env.Name, env.Payload); err != nil {
			b.logger.Debug("publish rejected", "conn", c.ID(), "topic", env.Name, "error", err)
		}
	}
}
