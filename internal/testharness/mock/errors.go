package mock

import "errors"

var (
	// ErrClosed is returned by operations on a closed Camera.
	ErrClosed = errors.New("mock camera closed")

	// ErrNoHandler answers calls to a service registered without a script.
	ErrNoHandler = errors.New("no scripted response")
)
