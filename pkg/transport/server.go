package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

// ServerConfig configures a broker-side listener.
type ServerConfig struct {
	// Address to listen on (e.g. ":7447" or "127.0.0.1:0").
	Address string

	// TLS enables TLS 1.3 when non-nil. See NewServerTLSConfig.
	TLS *tls.Config

	Conn ConnConfig

	// OnConnect is called when a new connection is established.
	OnConnect func(c *Conn)

	// OnDisconnect is called after a connection's read loop has ended.
	OnDisconnect func(c *Conn)

	// OnMessage is called from the connection's read loop for every
	// non-control envelope.
	OnMessage func(c *Conn, env *wire.Envelope)

	// OnError is called for accept, handshake and decode errors. c may be nil.
	OnError func(c *Conn, err error)
}

// Server accepts bus client connections.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all connections, then waits for
// connection goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.RLock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.RUnlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	if s.config.TLS != nil {
		tlsConn := tls.Server(nc, s.config.TLS)
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			nc.Close()
			s.reportError(nil, fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			s.reportError(nil, err)
			return
		}
		nc = tlsConn
	}

	c := newConn(nc, s.config.Conn, log.RoleBroker, connCallbacks{
		onMessage: s.config.OnMessage,
		onError:   s.config.OnError,
	})

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		nc.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	c.readLoop()

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
}

func (s *Server) reportError(c *Conn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(c, err)
	}
}
