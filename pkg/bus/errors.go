package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/camharness/camharness-go/pkg/wire"
)

// Runtime errors.
var (
	ErrShutdown        = errors.New("bus context is shut down")
	ErrNodeDestroyed   = errors.New("node destroyed")
	ErrNameInUse       = errors.New("name already in use")
	ErrInvalidName     = errors.New("invalid name")
	ErrGraphClosed     = errors.New("graph closed")
	ErrExecutorRunning = errors.New("executor already spinning")
	ErrNodeHasExecutor = errors.New("node already added to an executor")
	ErrNotOwned        = errors.New("entity not owned by this node")
	ErrServiceNotFound = errors.New("service not available")
)

// ServiceError is a failure reported by the remote side of a service call.
// It is returned unchanged to the caller; the runtime never retries.
type ServiceError struct {
	Service string
	Status  wire.Status
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service %s: %s", e.Service, e.Status)
	}
	return fmt.Sprintf("service %s: %s: %s", e.Service, e.Status, e.Message)
}

// Is matches ErrServiceNotFound for StatusNotFound errors.
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceNotFound && e.Status == wire.StatusNotFound
}

// Reject builds the error a service handler returns to refuse a request.
func Reject(format string, args ...any) error {
	return &ServiceError{Status: wire.StatusRejected, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequest builds the error a service handler returns for a
// malformed request payload.
func InvalidRequest(format string, args ...any) error {
	return &ServiceError{Status: wire.StatusInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// asServiceError normalizes a handler error for transmission to a caller.
// Context errors pass through untouched.
func asServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *ServiceError
	if errors.As(err, &se) {
		if se.Service == "" {
			cp := *se
			cp.Service = service
			return &cp
		}
		return se
	}
	return &ServiceError{Service: service, Status: wire.StatusRejected, Message: err.Error()}
}

// StatusOf maps an error to the wire status and message sent to a caller.
func StatusOf(err error) (wire.Status, string) {
	var se *ServiceError
	switch {
	case errors.As(err, &se):
		return se.Status, se.Message
	case errors.Is(err, context.DeadlineExceeded):
		return wire.StatusTimeout, err.Error()
	case errors.Is(err, ErrNameInUse):
		return wire.StatusAlreadyExists, err.Error()
	case errors.Is(err, ErrInvalidName):
		return wire.StatusInvalidRequest, err.Error()
	case errors.Is(err, ErrNodeDestroyed), errors.Is(err, ErrGraphClosed):
		return wire.StatusUnavailable, err.Error()
	default:
		return wire.StatusRejected, err.Error()
	}
}
