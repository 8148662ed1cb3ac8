package wire

// Kind identifies the envelope type.
type Kind uint8

const (
	// KindRequest asks the peer to perform an Op.
	KindRequest Kind = 1

	// KindResponse answers a request with the same MessageID.
	KindResponse Kind = 2

	// KindPublish carries a topic sample. MessageID is unused.
	KindPublish Kind = 3

	// KindControl carries a ControlMessageType.
	KindControl Kind = 4
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	case KindPublish:
		return "Publish"
	case KindControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k >= KindRequest && k <= KindControl
}

// Op represents a bus operation carried in a request.
type Op uint8

const (
	// OpHello registers the client's node name with the broker.
	OpHello Op = 1

	// OpSubscribe starts delivery of a topic to the client.
	OpSubscribe Op = 2

	// OpUnsubscribe stops delivery of a topic.
	OpUnsubscribe Op = 3

	// OpAdvertise announces a service hosted by the client.
	OpAdvertise Op = 4

	// OpWithdraw removes a previously advertised service.
	OpWithdraw Op = 5

	// OpCall invokes a service. Name is the fully qualified service name.
	OpCall Op = 6

	// OpListNodes returns the node names known to the broker.
	OpListNodes Op = 7

	// OpBye unregisters a node name.
	OpBye Op = 8

	// OpListServices returns the service names known to the broker.
	OpListServices Op = 9
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpHello:
		return "Hello"
	case OpSubscribe:
		return "Subscribe"
	case OpUnsubscribe:
		return "Unsubscribe"
	case OpAdvertise:
		return "Advertise"
	case OpWithdraw:
		return "Withdraw"
	case OpCall:
		return "Call"
	case OpListNodes:
		return "ListNodes"
	case OpBye:
		return "Bye"
	case OpListServices:
		return "ListServices"
	default:
		return "Unknown"
	}
}

// IsList returns true for operations that take no name.
func (o Op) IsList() bool {
	return o == OpListNodes || o == OpListServices
}

// IsValid returns true if the operation is known.
func (o Op) IsValid() bool {
	return o >= OpHello && o <= OpListServices
}
