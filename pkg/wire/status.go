package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusOK indicates the operation completed successfully.
	StatusOK Status = 0

	// StatusNotFound indicates the named node, topic or service doesn't exist.
	StatusNotFound Status = 1

	// StatusRejected indicates the service handler refused the request.
	StatusRejected Status = 2

	// StatusInvalidRequest indicates a malformed request or payload.
	StatusInvalidRequest Status = 3

	// StatusUnavailable indicates the service host went away before answering.
	StatusUnavailable Status = 4

	// StatusAlreadyExists indicates a name collision (node or service).
	StatusAlreadyExists Status = 5

	// StatusTimeout indicates the broker gave up waiting for the service host.
	StatusTimeout Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusRejected:
		return "REJECTED"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}
