package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int32

const (
	StateConnected ConnectionState = iota
	StateClosing
	StateClosed
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// ConnConfig holds per-connection settings shared by servers and clients.
type ConnConfig struct {
	// MaxMessageSize is the maximum packet payload (default: 32 MiB).
	MaxMessageSize uint32

	// WriteTimeout bounds a single Send (0 = no timeout).
	WriteTimeout time.Duration

	// KeepAlive is used by clients only. Zero fields take defaults.
	KeepAlive KeepAliveConfig

	// DisableKeepAlive turns off client pings.
	DisableKeepAlive bool

	// Logger captures packets and envelopes (optional).
	Logger log.Logger
}

// connCallbacks routes connection events to the owner.
type connCallbacks struct {
	onMessage func(c *Conn, env *wire.Envelope)
	onError   func(c *Conn, err error)
}

// Conn is an established, envelope-oriented connection.
type Conn struct {
	id     string
	nc     net.Conn
	pk     *Packetizer
	config ConnConfig
	role   log.Role
	cb     connCallbacks

	keepAlive *KeepAlive
	pingSeq   atomic.Uint32

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	// nodeName is attached to captured events once known.
	nodeName atomic.Value
}

func newConn(nc net.Conn, config ConnConfig, role log.Role, cb connCallbacks) *Conn {
	c := &Conn{
		id:     uuid.New().String(),
		nc:     nc,
		pk:     NewPacketizer(nc, config.MaxMessageSize),
		config: config,
		role:   role,
		cb:     cb,
		done:   make(chan struct{}),
	}
	c.nodeName.Store("")
	if config.Logger != nil {
		c.pk.SetLogger(config.Logger, c.id)
	}
	c.state.Store(int32(StateConnected))
	return c
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Done is closed after the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop, if any.
// Only meaningful after Done is closed.
func (c *Conn) Err() error {
	return c.closeErr
}

// SetNodeName tags subsequently captured events with a node name.
func (c *Conn) SetNodeName(name string) {
	c.nodeName.Store(name)
}

// NodeName returns the tag set by SetNodeName.
func (c *Conn) NodeName() string {
	return c.nodeName.Load().(string)
}

// KeepAlive returns the keep-alive monitor, or nil on server connections.
func (c *Conn) KeepAlive() *KeepAlive {
	return c.keepAlive
}

// Send encodes and writes an envelope. Safe for concurrent use.
func (c *Conn) Send(env *wire.Envelope) error {
	if c.State() != StateConnected && env.Kind != wire.KindControl {
		return ErrNotConnected
	}

	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	if c.config.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer func() { _ = c.nc.SetWriteDeadline(time.Time{}) }()
	}

	if err := c.pk.WritePacket(data); err != nil {
		return err
	}
	c.logEnvelope(env, log.DirectionOut)
	return nil
}

// Close sends a close control message and closes the socket.
// It does not wait for the read loop; use Done for that.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		_ = c.Send(wire.NewControl(wire.ControlClose, 0))
		err = c.teardown()
	})
	return err
}

// forceClose closes without the close handshake.
func (c *Conn) forceClose() {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		_ = c.teardown()
	})
}

func (c *Conn) teardown() error {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	return c.nc.Close()
}

func (c *Conn) closing() bool {
	return c.State() != StateConnected
}

func (c *Conn) setState(s ConnectionState) {
	old := ConnectionState(c.state.Swap(int32(s)))
	if old == s || c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    c.role,
		RemoteAddr:   c.nc.RemoteAddr().String(),
		NodeName:     c.NodeName(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: s.String(),
		},
	})
}

// startKeepAlive begins client-side liveness monitoring.
func (c *Conn) startKeepAlive(ctx context.Context) {
	if c.config.DisableKeepAlive {
		return
	}
	c.keepAlive = NewKeepAlive(c.config.KeepAlive,
		func(seq uint32) error {
			return c.Send(wire.NewControl(wire.ControlPing, seq))
		},
		func() {
			c.reportError(ErrKeepAliveTimeout)
			c.forceClose()
		},
	)
	c.keepAlive.Start(ctx)
}

// readLoop reads envelopes until the connection ends.
func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		data, err := c.pk.ReadPacket()
		if err != nil {
			if !c.closing() {
				c.closeErr = fmt.Errorf("read error: %w", err)
			}
			break
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.reportError(err)
			continue
		}
		c.logEnvelope(env, log.DirectionIn)

		if env.Kind == wire.KindControl {
			c.handleControl(env)
			continue
		}
		if c.cb.onMessage != nil {
			c.cb.onMessage(c, env)
		}
	}

	c.forceClose()
	c.setState(StateClosed)
}

func (c *Conn) handleControl(env *wire.Envelope) {
	switch env.Control {
	case wire.ControlPing:
		_ = c.Send(wire.NewControl(wire.ControlPong, env.Sequence))
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(env.Sequence)
		}
	case wire.ControlClose:
		c.forceClose()
	}
}

func (c *Conn) reportError(err error) {
	if c.config.Logger != nil {
		c.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			LocalRole:    c.role,
			NodeName:     c.NodeName(),
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error()},
		})
	}
	if c.cb.onError != nil {
		c.cb.onError(c, err)
	}
}

func (c *Conn) logEnvelope(env *wire.Envelope, dir log.Direction) {
	if c.config.Logger == nil {
		return
	}
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    c.role,
		NodeName:     c.NodeName(),
	}
	if env.Kind == wire.KindControl {
		ev.Category = log.CategoryControl
		ev.ControlMsg = &log.ControlMsgEvent{Type: env.Control, Sequence: env.Sequence}
	} else {
		ev.Message = log.NewMessageEvent(env)
	}
	c.config.Logger.Log(ev)
}
