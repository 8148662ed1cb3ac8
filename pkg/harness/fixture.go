package harness

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
)

// FixtureOption configures Setup.
type FixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	idGen      IDGenerator
	busOpts    []bus.Option
	camera     *camera.Config
	noCamera   bool
	cameraName string
	node       Config
	logger     *slog.Logger
}

// WithIDGenerator replaces GenerateIdentifier.
func WithIDGenerator(gen IDGenerator) FixtureOption {
	return func(o *fixtureOptions) { o.idGen = gen }
}

// WithGraph runs the fixture on an existing graph instead of a private
// LocalGraph. The graph is not closed on teardown.
func WithGraph(g bus.Graph) FixtureOption {
	return func(o *fixtureOptions) { o.busOpts = append(o.busOpts, bus.WithGraph(g)) }
}

// WithBroker connects the fixture's runtime to a broker.
func WithBroker(addr string, config bus.RemoteConfig) FixtureOption {
	return func(o *fixtureOptions) { o.busOpts = append(o.busOpts, bus.WithBroker(addr, config)) }
}

// WithCameraConfig sets the simulated camera's configuration. An empty
// Name is replaced by the identifier-derived camera node name.
func WithCameraConfig(config camera.Config) FixtureOption {
	return func(o *fixtureOptions) { o.camera = &config }
}

// WithoutCamera skips launching the simulated camera, for tests that
// drive an external camera node or publish frames themselves.
func WithoutCamera() FixtureOption {
	return func(o *fixtureOptions) { o.noCamera = true }
}

// WithCameraNodeName points the test node at a camera other than
// vimbax_camera_test_<id>.
func WithCameraNodeName(name string) FixtureOption {
	return func(o *fixtureOptions) { o.cameraName = name }
}

// WithGraceInterval sets the unsubscribe grace interval.
func WithGraceInterval(d time.Duration) FixtureOption {
	return func(o *fixtureOptions) { o.node.GraceInterval = d }
}

// WithQueueLimit bounds the frame queue.
func WithQueueLimit(n int) FixtureOption {
	return func(o *fixtureOptions) { o.node.QueueMaxLen = n }
}

// WithLogger sets the logger for the runtime and both nodes.
func WithLogger(l *slog.Logger) FixtureOption {
	return func(o *fixtureOptions) { o.logger = l }
}

// Fixture is the runtime of one harness test.
type Fixture struct {
	Context *bus.Context
	ID      Identifier

	// Camera is nil when WithoutCamera was given.
	Camera *camera.Camera
	Node   *TestNode
}

// Identifier returns the identifier the fixture's node names derive from.
func (f *Fixture) Identifier() Identifier {
	return f.ID
}

// Setup initializes a bus runtime, launches the simulated camera and
// creates the test node. Everything is released through t.Cleanup in
// reverse order, including when Setup itself fails part way.
func Setup(t testing.TB, opts ...FixtureOption) *Fixture {
	t.Helper()

	o := fixtureOptions{idGen: GenerateIdentifier, node: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.node.Logger = o.logger

	id := o.idGen()
	if err := id.Validate(); err != nil {
		t.Fatalf("harness setup: %v", err)
	}

	bctx, err := bus.Init(context.Background(), append(o.busOpts, bus.WithLogger(o.logger))...)
	if err != nil {
		t.Fatalf("harness setup: %v", err)
	}
	t.Cleanup(func() {
		if err := bctx.Shutdown(); err != nil {
			t.Errorf("bus shutdown: %v", err)
		}
	})

	f := &Fixture{Context: bctx, ID: id}
	cameraName := o.cameraName
	if cameraName == "" {
		cameraName = id.CameraNodeName()
	}

	if !o.noCamera {
		config := camera.DefaultConfig()
		if o.camera != nil {
			config = *o.camera
		}
		if config.Name == "" || config.Name == camera.DefaultName {
			config.Name = cameraName
		}
		cam, err := camera.New(bctx, config)
		if err != nil {
			t.Fatalf("harness setup: launch camera: %v", err)
		}
		t.Cleanup(func() { _ = cam.Close() })
		f.Camera = cam
		cameraName = cam.Name()
	}

	node, err := NewTestNode(bctx, id.TestNodeName(), cameraName, o.node)
	if err != nil {
		t.Fatalf("harness setup: %v", err)
	}
	t.Cleanup(func() { _ = node.Close() })
	f.Node = node
	return f
}
