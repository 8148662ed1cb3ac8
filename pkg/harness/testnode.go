package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/wire"
)

// Defaults for Config.
const (
	DefaultGraceInterval = 100 * time.Millisecond
	DefaultDepth         = 10
	DefaultCallTimeout   = 10 * time.Second
)

// Config configures a TestNode.
type Config struct {
	// GraceInterval bounds the wait for in-flight callbacks on unsubscribe.
	GraceInterval time.Duration

	// Depth is the subscription history depth.
	Depth int

	// QueueMaxLen limits the frame queue; 0 means unbounded.
	QueueMaxLen int

	// CallTimeout bounds CallAndWait when ctx has no deadline.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default test node configuration.
func DefaultConfig() Config {
	return Config{
		GraceInterval: DefaultGraceInterval,
		Depth:         DefaultDepth,
		CallTimeout:   DefaultCallTimeout,
	}
}

// State is the lifecycle state of the executor goroutine.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TestNode is the synchronous facade over one bus node.
type TestNode struct {
	config     Config
	cameraName string
	node       *bus.Node
	exec       *bus.Executor
	queue      *Queue
	logger     *slog.Logger

	// lifecycle serializes subscribe and unsubscribe.
	lifecycle sync.Mutex
	sub       *bus.Subscription

	clientsMu sync.Mutex
	clients   map[string]*bus.Client

	state        atomic.Int32
	cancel       context.CancelFunc
	stopped      chan struct{}
	decodeErrors atomic.Uint64
}

// NewTestNode creates the node name on bctx and starts its executor
// goroutine. cameraNodeName selects the image topic
// <cameraNodeName>/image_raw.
func NewTestNode(bctx *bus.Context, name, cameraNodeName string, config Config) (*TestNode, error) {
	defaults := DefaultConfig()
	if config.GraceInterval <= 0 {
		config.GraceInterval = defaults.GraceInterval
	}
	if config.Depth <= 0 {
		config.Depth = defaults.Depth
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.Logger == nil {
		config.Logger = bctx.Logger()
	}

	node, err := bctx.NewNode(name)
	if err != nil {
		return nil, err
	}

	t := &TestNode{
		config:     config,
		cameraName: cameraNodeName,
		node:       node,
		exec:       bus.NewExecutor(config.Logger),
		queue:      NewQueue(config.QueueMaxLen),
		logger:     config.Logger.With("node", node.FullyQualifiedName()),
		clients:    make(map[string]*bus.Client),
		stopped:    make(chan struct{}),
	}
	if err := t.exec.Add(node); err != nil {
		node.Destroy()
		return nil, err
	}
	t.start()
	return t, nil
}

func (t *TestNode) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.state.Store(int32(StateRunning))
	go func() {
		defer close(t.stopped)
		if err := t.exec.Spin(ctx); err != nil {
			t.logger.Error("executor failed", "error", err)
		}
	}()
	t.logger.Debug("executor started")
}

// Name returns the node's base name.
func (t *TestNode) Name() string {
	return t.node.Name()
}

// CameraNodeName returns the name of the camera under test.
func (t *TestNode) CameraNodeName() string {
	return t.cameraName
}

// Node returns the underlying bus node.
func (t *TestNode) Node() *bus.Node {
	return t.node
}

// Queue returns the frame queue.
func (t *TestNode) Queue() *Queue {
	return t.queue
}

// State returns the executor lifecycle state.
func (t *TestNode) State() State {
	return State(t.state.Load())
}

// DecodeErrors returns the number of samples that were not valid frames.
func (t *TestNode) DecodeErrors() uint64 {
	return t.decodeErrors.Load()
}

// SubscribeImageRaw subscribes to <camera>/image_raw. Fails with
// ErrAlreadySubscribed, leaving the active subscription intact.
func (t *TestNode) SubscribeImageRaw() error {
	if t.State() == StateStopped {
		return ErrStopped
	}
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.sub != nil {
		return ErrAlreadySubscribed
	}
	sub, err := t.node.CreateSubscription(t.cameraName+"/image_raw", t.config.Depth, t.onImage)
	if err != nil {
		return err
	}
	t.sub = sub
	t.logger.Debug("subscribed", "topic", sub.Topic())
	return nil
}

// UnsubscribeImageRaw destroys the image subscription, waits up to the
// grace interval for a callback that may still be running, then clears
// the queue. Fails with ErrNotSubscribed.
func (t *TestNode) UnsubscribeImageRaw() error {
	if t.State() == StateStopped {
		return ErrStopped
	}
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.sub == nil {
		return ErrNotSubscribed
	}
	sub := t.sub
	t.sub = nil
	if !t.node.DestroySubscription(sub) {
		return ErrNotSubscribed
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.config.GraceInterval)
	err := t.node.Barrier(ctx)
	cancel()
	if err != nil {
		t.logger.Warn("executor not quiescent after grace interval", "grace", t.config.GraceInterval, "error", err)
	}

	discarded := t.queue.Clear()
	t.logger.Debug("unsubscribed", "topic", sub.Topic(), "discarded", discarded)
	return nil
}

// Subscribed reports whether an image subscription is active.
func (t *TestNode) Subscribed() bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	return t.sub != nil
}

// ClearQueue discards all queued frames.
func (t *TestNode) ClearQueue() int {
	return t.queue.Clear()
}

// WaitForFrame returns the oldest queued frame, waiting up to timeout.
// Fails with ErrTimeout.
func (t *TestNode) WaitForFrame(timeout time.Duration) (*frame.Frame, error) {
	if t.State() == StateStopped {
		return nil, ErrStopped
	}
	return t.queue.Dequeue(timeout)
}

// CallAndWait calls service and blocks until its answer is delivered on
// the executor. Remote failures are returned as *bus.ServiceError. When
// ctx expires first the error wraps both ErrTimeout and ctx.Err().
func (t *TestNode) CallAndWait(ctx context.Context, service string, request []byte) ([]byte, error) {
	if t.State() == StateStopped {
		return nil, ErrStopped
	}
	client, err := t.client(service)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.CallTimeout)
		defer cancel()
	}

	resp, err := client.Call(ctx, request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("call %s: %w: %w", client.Service(), ErrTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

// CallServiceSync encodes req as CBOR, calls service and decodes the
// answer into resp. resp may be nil for calls without a result.
func (t *TestNode) CallServiceSync(ctx context.Context, service string, req, resp any) error {
	var payload []byte
	if req != nil {
		var err error
		if payload, err = wire.Marshal(req); err != nil {
			return fmt.Errorf("encode %s request: %w", service, err)
		}
	}
	out, err := t.CallAndWait(ctx, service, payload)
	if err != nil {
		return err
	}
	if resp == nil || len(out) == 0 {
		return nil
	}
	if err := wire.Unmarshal(out, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", service, err)
	}
	return nil
}

// WaitForService blocks until service is advertised or ctx ends.
func (t *TestNode) WaitForService(ctx context.Context, service string) error {
	client, err := t.client(service)
	if err != nil {
		return err
	}
	return client.WaitForService(ctx, 20*time.Millisecond)
}

// Close stops the executor, joins its goroutine and destroys the node.
// Idempotent.
func (t *TestNode) Close() error {
	if State(t.state.Swap(int32(StateStopped))) == StateStopped {
		return nil
	}
	t.cancel()
	<-t.stopped
	t.node.Destroy()
	t.queue.Clear()
	t.logger.Debug("executor stopped")
	return nil
}

// client returns a cached client for a service name. Relative names
// resolve against the test node, so "<camera>/stream_start" addresses the
// camera's service.
func (t *TestNode) client(service string) (*bus.Client, error) {
	t.clientsMu.Lock()
	defer t.clientsMu.Unlock()
	if c, ok := t.clients[service]; ok {
		return c, nil
	}
	c, err := t.node.CreateClient(service)
	if err != nil {
		return nil, err
	}
	t.clients[service] = c
	return c, nil
}

// onImage runs on the executor goroutine.
func (t *TestNode) onImage(m bus.Message) {
	f, err := frame.Decode(m.Data)
	if err != nil {
		t.decodeErrors.Add(1)
		t.logger.Warn("dropping undecodable sample", "topic", m.Topic, "seq", m.Seq, "error", err)
		return
	}
	f.ReceivedAt = m.ReceivedAt
	t.queue.Enqueue(f)
}
