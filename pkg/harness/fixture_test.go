package harness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/harness"
)

func TestFrameDeliveryEndToEnd(t *testing.T) {
	f := harness.Setup(t,
		harness.WithIDGenerator(harness.FixedIdentifier("h1")),
		harness.WithCameraConfig(camera.Config{Name: "cam1"}),
	)
	assert.Equal(t, harness.Identifier("h1"), f.Identifier())
	assert.Equal(t, "_test_node_h1", f.Node.Name())
	assert.Equal(t, "/cam1/image_raw", f.Camera.ImageTopic())

	require.NoError(t, f.Node.SubscribeImageRaw())

	pattern := camera.Pattern{Width: 8, Height: 4, Encoding: "mono8"}
	base := time.Now()
	stamps := []time.Time{base, base.Add(10 * time.Millisecond), base.Add(20 * time.Millisecond)}
	for i, stamp := range stamps {
		require.NoError(t, f.Camera.Publish(pattern.Render(uint32(i+1), stamp, "camera_link")))
	}

	for i, want := range stamps {
		got, err := f.Node.WaitForFrame(time.Second)
		require.NoError(t, err, "frame %d", i+1)
		assert.True(t, want.Equal(got.Stamp), "frame %d stamp = %v, want %v", i+1, got.Stamp, want)
		assert.False(t, got.ReceivedAt.IsZero())
	}

	start := time.Now()
	_, err := f.Node.WaitForFrame(200 * time.Millisecond)
	assert.ErrorIs(t, err, harness.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestSetupStreamingCamera(t *testing.T) {
	config := camera.DefaultConfig()
	config.Width, config.Height, config.FrameRate = 32, 16, 100
	f := harness.Setup(t, harness.WithCameraConfig(config))

	assert.Equal(t, f.ID.CameraNodeName(), f.Camera.Name())
	assert.True(t, f.Camera.Streaming())

	require.NoError(t, f.Node.SubscribeImageRaw())
	first, err := f.Node.WaitForFrame(2 * time.Second)
	require.NoError(t, err)
	second, err := f.Node.WaitForFrame(2 * time.Second)
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, uint32(32), first.Width)
}

func TestSetupSharedGraph(t *testing.T) {
	g := bus.NewLocalGraph()
	t.Cleanup(func() { _ = g.Close() })

	a := harness.Setup(t, harness.WithGraph(g), harness.WithoutCamera())
	b := harness.Setup(t, harness.WithGraph(g), harness.WithoutCamera())
	assert.NotEqual(t, a.ID, b.ID, "concurrent fixtures get distinct identifiers")

	nodes, err := g.Nodes(t.Context())
	require.NoError(t, err)
	assert.Contains(t, nodes, "/"+a.ID.TestNodeName())
	assert.Contains(t, nodes, "/"+b.ID.TestNodeName())
}

func TestSetupTeardownReleasesNodes(t *testing.T) {
	g := bus.NewLocalGraph()
	defer g.Close()

	t.Run("fixture", func(t *testing.T) {
		harness.Setup(t, harness.WithGraph(g), harness.WithIDGenerator(harness.FixedIdentifier("r1")))
	})

	nodes, err := g.Nodes(t.Context())
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// The same identifier can be reused once the previous fixture is gone.
	harness.Setup(t, harness.WithGraph(g), harness.WithIDGenerator(harness.FixedIdentifier("r1")))
}
