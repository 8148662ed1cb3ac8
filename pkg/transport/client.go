package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

// ClientConfig configures an outgoing connection to a broker.
type ClientConfig struct {
	// TLS enables TLS 1.3 when non-nil. See NewClientTLSConfig.
	TLS *tls.Config

	Conn ConnConfig

	// OnMessage is called from the read loop for every non-control envelope.
	OnMessage func(c *Conn, env *wire.Envelope)

	// OnError is called for keep-alive and decode errors.
	OnError func(c *Conn, err error)

	// OnDisconnect is called once after the read loop has ended.
	OnDisconnect func(c *Conn)
}

// Dial connects to a broker at address and starts the read loop.
func Dial(ctx context.Context, address string, config ClientConfig) (*Conn, error) {
	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if config.TLS != nil {
		tlsConn := tls.Client(nc, config.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("connection verification failed: %w", err)
		}
		nc = tlsConn
	}

	c := newConn(nc, config.Conn, log.RoleClient, connCallbacks{
		onMessage: config.OnMessage,
		onError:   config.OnError,
	})

	// The keep-alive goroutine must outlive the dial context.
	c.startKeepAlive(context.Background())

	go func() {
		c.readLoop()
		if config.OnDisconnect != nil {
			config.OnDisconnect(c)
		}
	}()

	return c, nil
}
