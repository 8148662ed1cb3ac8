package runner

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/wire"
)

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		cat  ErrorCategory
		want string
	}{
		{ErrCatInfrastructure, "infrastructure"},
		{ErrCatCamera, "camera"},
		{ErrCatScenario, "scenario"},
		{ErrorCategory(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCategoryDefaultsToScenario(t *testing.T) {
	if got := Category(errors.New("plain")); got != ErrCatScenario {
		t.Errorf("Category = %v", got)
	}
	wrapped := fmt.Errorf("step: %w", Camera(errors.New("busy")))
	if got := Category(wrapped); got != ErrCatCamera {
		t.Errorf("Category(wrapped) = %v", got)
	}
}

func TestClassifyCallError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"rejected", &bus.ServiceError{Service: "/cam1/stream_start", Status: wire.StatusRejected, Message: "busy"}, ErrCatCamera},
		{"invalid request", &bus.ServiceError{Status: wire.StatusInvalidRequest}, ErrCatCamera},
		{"not found", &bus.ServiceError{Status: wire.StatusNotFound}, ErrCatInfrastructure},
		{"unavailable", &bus.ServiceError{Status: wire.StatusUnavailable}, ErrCatInfrastructure},
		{"sentinel not found", fmt.Errorf("call: %w", bus.ErrServiceNotFound), ErrCatInfrastructure},
		{"eof", fmt.Errorf("read: %w", io.EOF), ErrCatInfrastructure},
		{"refused", errors.New("dial tcp 127.0.0.1:1: connection refused"), ErrCatInfrastructure},
		{"other", errors.New("bad request map"), ErrCatScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyCallError(tt.err)
			if got := Category(err); got != tt.want {
				t.Errorf("Category = %v, want %v", got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classification lost the original error")
			}
		})
	}
	if classifyCallError(nil) != nil {
		t.Error("nil error classified")
	}
}
