package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
)

// ErrUnknownExecutable is returned for a node whose executable has no
// registered factory.
var ErrUnknownExecutable = errors.New("unknown executable")

// Process is a running node started by a launcher.
type Process interface {
	Name() string
	Close() error
}

// Factory starts the executable described by spec on bctx.
type Factory func(ctx context.Context, bctx *bus.Context, spec NodeSpec) (Process, error)

// Launcher maps executables to factories.
type Launcher struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

// NewLauncher returns a launcher with the built-in executables
// registered.
func NewLauncher(logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Launcher{factories: make(map[string]Factory), logger: logger}
	l.Register("vimbax_camera_node", CameraFactory)
	return l
}

// Register binds an executable name to a factory, replacing any previous
// binding.
func (l *Launcher) Register(executable string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[executable] = f
}

// Launch starts every node of a resolved description. On failure the
// nodes already started are closed again.
func (l *Launcher) Launch(ctx context.Context, bctx *bus.Context, desc *Description) (*Session, error) {
	s := &Session{logger: l.logger}
	for _, spec := range desc.Nodes {
		l.mu.RLock()
		factory, ok := l.factories[spec.Executable]
		l.mu.RUnlock()
		if !ok {
			_ = s.Shutdown()
			return nil, &Error{Node: spec.Name, Message: spec.Executable, Cause: ErrUnknownExecutable}
		}

		p, err := factory(ctx, bctx, spec)
		if err != nil {
			_ = s.Shutdown()
			return nil, &Error{Node: spec.Name, Message: "start failed", Cause: err}
		}
		l.logger.Info("node launched", "name", spec.Name, "namespace", spec.Namespace, "executable", spec.Executable)
		s.procs = append(s.procs, p)
	}
	return s, nil
}

// Session is the set of nodes started by one Launch.
type Session struct {
	mu     sync.Mutex
	procs  []Process
	logger *slog.Logger
}

// Nodes returns the running processes in launch order.
func (s *Session) Nodes() []Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Process(nil), s.procs...)
}

// Shutdown closes every process in reverse launch order and returns the
// first error.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	var first error
	for i := len(procs) - 1; i >= 0; i-- {
		if err := procs[i].Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", procs[i].Name(), err)
		}
	}
	return first
}

// CameraFactory starts a simulated camera from a vimbax_camera_node spec.
func CameraFactory(_ context.Context, bctx *bus.Context, spec NodeSpec) (Process, error) {
	config := camera.DefaultConfig()
	if err := config.ApplyParameters(spec.Parameters); err != nil {
		return nil, err
	}
	config.Name = spec.Name
	config.Namespace = spec.Namespace
	config.Remaps = spec.Remappings
	return camera.New(bctx, config)
}
