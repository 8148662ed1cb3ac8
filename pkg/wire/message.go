package wire

import (
	"errors"
	"fmt"
)

// CBOR map keys for envelope encoding.
const (
	KeyKind      = 1
	KeyMessageID = 2
	KeyOp        = 3
	KeyStatus    = 4
	KeyName      = 5
	KeyPayload   = 6
	KeyError     = 7
	KeyControl   = 8
	KeySequence  = 9
)

// Envelope is the single message type on the bus.
//
// CBOR encoding:
//
//	{
//	  1: kind,       // uint8
//	  2: messageId,  // uint32: request/response correlation
//	  3: op,         // uint8: request only
//	  4: status,     // uint8: response only
//	  5: name,       // string: node, topic or service name
//	  6: payload,    // bstr: opaque CBOR
//	  7: error,      // string: response only, human-readable
//	  8: control,    // uint8: control only
//	  9: sequence    // uint32: publish/control sequence
//	}
type Envelope struct {
	Kind      Kind               `cbor:"1,keyasint"`
	MessageID uint32             `cbor:"2,keyasint,omitempty"`
	Op        Op                 `cbor:"3,keyasint,omitempty"`
	Status    Status             `cbor:"4,keyasint,omitempty"`
	Name      string             `cbor:"5,keyasint,omitempty"`
	Payload   []byte             `cbor:"6,keyasint,omitempty"`
	Error     string             `cbor:"7,keyasint,omitempty"`
	Control   ControlMessageType `cbor:"8,keyasint,omitempty"`
	Sequence  uint32             `cbor:"9,keyasint,omitempty"`
}

// Validation errors.
var (
	ErrInvalidKind    = errors.New("invalid envelope kind")
	ErrInvalidOp      = errors.New("invalid operation")
	ErrMissingID      = errors.New("messageId 0 is reserved")
	ErrMissingName    = errors.New("name is required")
	ErrInvalidControl = errors.New("invalid control type")
)

// Validate checks the envelope for structural errors.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindRequest:
		if e.MessageID == 0 {
			return ErrMissingID
		}
		if !e.Op.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidOp, e.Op)
		}
		if !e.Op.IsList() && e.Name == "" {
			return fmt.Errorf("%s: %w", e.Op, ErrMissingName)
		}
	case KindResponse:
		if e.MessageID == 0 {
			return ErrMissingID
		}
	case KindPublish:
		if e.Name == "" {
			return fmt.Errorf("publish: %w", ErrMissingName)
		}
	case KindControl:
		if e.Control < ControlPing || e.Control > ControlClose {
			return fmt.Errorf("%w: %d", ErrInvalidControl, e.Control)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, e.Kind)
	}
	return nil
}

// IsSuccess returns true for a response carrying StatusOK.
func (e *Envelope) IsSuccess() bool {
	return e.Kind == KindResponse && e.Status.IsSuccess()
}

// NewRequest builds a request envelope.
func NewRequest(id uint32, op Op, name string, payload []byte) *Envelope {
	return &Envelope{Kind: KindRequest, MessageID: id, Op: op, Name: name, Payload: payload}
}

// NewResponse builds a successful response to req.
func NewResponse(req *Envelope, payload []byte) *Envelope {
	return &Envelope{Kind: KindResponse, MessageID: req.MessageID, Name: req.Name, Payload: payload}
}

// NewErrorResponse builds a failed response to req.
func NewErrorResponse(req *Envelope, status Status, msg string) *Envelope {
	return &Envelope{Kind: KindResponse, MessageID: req.MessageID, Name: req.Name, Status: status, Error: msg}
}

// NewPublish builds a publish envelope for topic.
func NewPublish(topic string, seq uint32, payload []byte) *Envelope {
	return &Envelope{Kind: KindPublish, Name: topic, Sequence: seq, Payload: payload}
}

// NewControl builds a control envelope.
func NewControl(t ControlMessageType, seq uint32) *Envelope {
	return &Envelope{Kind: KindControl, Control: t, Sequence: seq}
}

// HelloPayload is carried by OpHello.
//
// CBOR encoding:
//
//	{
//	  1: node,       // string: fully qualified node name
//	  2: clientId    // string: client instance UUID
//	}
type HelloPayload struct {
	Node     string `cbor:"1,keyasint"`
	ClientID string `cbor:"2,keyasint,omitempty"`
}

// SubscribePayload is carried by OpSubscribe.
//
// CBOR encoding:
//
//	{
//	  1: depth  // uint16: history depth hint (KEEP_LAST)
//	}
type SubscribePayload struct {
	Depth uint16 `cbor:"1,keyasint,omitempty"`
}

// NameListPayload is the response payload of OpListNodes and OpListServices.
type NameListPayload struct {
	Names []string `cbor:"1,keyasint"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
