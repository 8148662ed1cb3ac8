package runner

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/transport"
	"github.com/camharness/camharness-go/pkg/wire"
)

// ErrorCategory classifies errors for retry decisions.
type ErrorCategory int

const (
	// ErrCatInfrastructure means network or timing issues that may resolve on retry.
	ErrCatInfrastructure ErrorCategory = iota
	// ErrCatCamera means the camera refused the request; retrying won't help.
	ErrCatCamera
	// ErrCatScenario means the scenario itself is wrong.
	ErrCatScenario
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCatInfrastructure:
		return "infrastructure"
	case ErrCatCamera:
		return "camera"
	case ErrCatScenario:
		return "scenario"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with a category.
type ClassifiedError struct {
	Category ErrorCategory
	Err      error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Infrastructure wraps err as retryable.
func Infrastructure(err error) error {
	return &ClassifiedError{Category: ErrCatInfrastructure, Err: err}
}

// Camera wraps err as a camera-side refusal.
func Camera(err error) error {
	return &ClassifiedError{Category: ErrCatCamera, Err: err}
}

// Scenario wraps err as a scenario mistake.
func Scenario(err error) error {
	return &ClassifiedError{Category: ErrCatScenario, Err: err}
}

// Category extracts the error category. Unclassified errors count as
// scenario errors so they are never retried.
func Category(err error) ErrorCategory {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrCatScenario
}

// classifyCallError categorizes a failed service call. A missing service
// may just not be advertised yet; a rejection is the camera's answer.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	var se *bus.ServiceError
	if errors.As(err, &se) {
		switch se.Status {
		case wire.StatusNotFound, wire.StatusUnavailable, wire.StatusTimeout:
			return Infrastructure(err)
		default:
			return Camera(err)
		}
	}
	if errors.Is(err, bus.ErrServiceNotFound) || isIOError(err) {
		return Infrastructure(err)
	}
	return Scenario(err)
}

// isIOError reports network-level failures.
func isIOError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, transport.ErrNotConnected) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}
