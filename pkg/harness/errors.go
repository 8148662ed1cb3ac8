package harness

import "errors"

// Harness errors. Remote call failures are returned as *bus.ServiceError.
var (
	ErrTimeout           = errors.New("timed out")
	ErrAlreadySubscribed = errors.New("image stream already subscribed")
	ErrNotSubscribed     = errors.New("image stream not subscribed")
	ErrStopped           = errors.New("test node stopped")
	ErrInvalidIdentifier = errors.New("invalid harness identifier")
)
