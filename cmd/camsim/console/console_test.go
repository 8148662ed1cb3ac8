package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/launch"
)

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	bctx, err := bus.Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bctx.Shutdown() })

	desc := &launch.Description{Nodes: []launch.NodeSpec{{
		Executable: "vimbax_camera_node",
		Name:       "cam1",
		Parameters: map[string]any{"autostream": 0},
	}}}
	session, err := launch.NewLauncher(nil).Launch(context.Background(), bctx, desc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Shutdown() })

	var out bytes.Buffer
	c := newWithWriter(&out)
	c.Attach(nil, session)
	return c, &out
}

func TestConsoleFeatures(t *testing.T) {
	c, out := newTestConsole(t)

	assert.False(t, c.Execute("set cam1 Width 320"))
	assert.Contains(t, out.String(), "Width := 320")
	out.Reset()

	c.Execute("get cam1 Width")
	assert.Contains(t, out.String(), "Width = 320")
	out.Reset()

	c.Execute("set cam1 DeviceSerialNumber x")
	assert.Contains(t, out.String(), "Error:")
	out.Reset()

	c.Execute("features cam1")
	assert.Contains(t, out.String(), "AcquisitionFrameRate")
}

func TestConsoleStreaming(t *testing.T) {
	c, out := newTestConsole(t)
	cam := c.cameras()[0]

	c.Execute("start cam1")
	assert.True(t, cam.Streaming())
	assert.Contains(t, out.String(), "cam1 streaming: true")

	c.Execute("stop cam1")
	assert.False(t, cam.Streaming())

	out.Reset()
	c.Execute("stop cam1")
	assert.Contains(t, out.String(), camera.ErrNotStreaming.Error())
}

func TestConsoleUnknownAndQuit(t *testing.T) {
	c, out := newTestConsole(t)

	assert.False(t, c.Execute("zoom"))
	assert.Contains(t, out.String(), "Unknown command: zoom")
	assert.False(t, c.Execute("get cam9 Width"))
	assert.Contains(t, out.String(), `no camera "cam9"`)
	assert.False(t, c.Execute("   "))
	assert.True(t, c.Execute("quit"))
}
