package log

import (
	"time"

	"github.com/camharness/camharness-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID). Empty for in-process events.
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole indicates whether the recorder is a broker or a client.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// NodeName is the bus node the event concerns, when known.
	NodeName string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Packet      *PacketEvent      `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the packet layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the envelope layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerBus is the node/executor layer.
	LayerBus Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerBus:
		return "BUS"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of a connection recorded the event.
type Role uint8

const (
	RoleBroker Role = 0
	RoleClient Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleBroker:
		return "BROKER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// PacketEvent captures raw packet data at the transport layer.
type PacketEvent struct {
	// Size is the packet size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw packet bytes, truncated for large packets.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxCapturedPacket is the number of packet bytes kept in a PacketEvent.
// Image payloads are large; the digest of interest lives in MessageEvent.
const MaxCapturedPacket = 256

// NewPacketEvent builds a PacketEvent, truncating data to MaxCapturedPacket.
func NewPacketEvent(size int, data []byte) *PacketEvent {
	pe := &PacketEvent{Size: size}
	if len(data) > MaxCapturedPacket {
		pe.Data = append([]byte(nil), data[:MaxCapturedPacket]...)
		pe.Truncated = true
	} else {
		pe.Data = append([]byte(nil), data...)
	}
	return pe
}

// MessageEvent captures a decoded envelope at the wire layer.
type MessageEvent struct {
	Kind      wire.Kind `cbor:"1,keyasint"`
	MessageID uint32    `cbor:"2,keyasint,omitempty"`

	// For requests: the operation being performed.
	Op *wire.Op `cbor:"3,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"4,keyasint,omitempty"`

	// Name is the node, topic or service name.
	Name string `cbor:"5,keyasint,omitempty"`

	PayloadSize int `cbor:"6,keyasint,omitempty"`

	// Sequence is the publish sequence number.
	Sequence uint32 `cbor:"7,keyasint,omitempty"`

	// ErrorMessage is the response error text.
	ErrorMessage string `cbor:"8,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send.
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// NewMessageEvent summarizes an envelope.
func NewMessageEvent(env *wire.Envelope) *MessageEvent {
	me := &MessageEvent{
		Kind:         env.Kind,
		MessageID:    env.MessageID,
		Name:         env.Name,
		PayloadSize:  len(env.Payload),
		Sequence:     env.Sequence,
		ErrorMessage: env.Error,
	}
	switch env.Kind {
	case wire.KindRequest:
		op := env.Op
		me.Op = &op
	case wire.KindResponse:
		st := env.Status
		me.Status = &st
	}
	return me
}

// StateChangeEvent captures connection, node and subscription lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntityConnection   StateEntity = 0
	StateEntityNode         StateEntity = 1
	StateEntitySubscription StateEntity = 2
	StateEntityExecutor     StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityNode:
		return "NODE"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	case StateEntityExecutor:
		return "EXECUTOR"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	Type     wire.ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32                  `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// EncodeEvent encodes an event with the bus codec, so capture files keep
// nanosecond timestamps and embedded envelopes decode unchanged.
func EncodeEvent(event Event) ([]byte, error) {
	return wire.Marshal(event)
}

// DecodeEvent decodes an event written by EncodeEvent or a FileLogger.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := wire.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
