package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
)

const cameraLaunch = `
arguments:
  - name: camera_name
    default: vimbax_camera_test
  - name: frame_id
nodes:
  - package: vimbax_camera
    executable: vimbax_camera_node
    name: $(var camera_name)
    namespace: $(var camera_name)
    parameters:
      camera_frame_id: $(var frame_id)
      autostream: 0
      width: 320
    remappings:
      image_raw: /$(var camera_name)/image
`

func TestParseAndResolve(t *testing.T) {
	d, err := Parse([]byte(cameraLaunch))
	require.NoError(t, err)
	require.Len(t, d.Nodes, 1)

	_, err = d.Resolve(nil)
	assert.ErrorIs(t, err, ErrMissingArgument)

	overrides, err := ParseOverrides([]string{"camera_name:=cam1", "frame_id:=optical"})
	require.NoError(t, err)
	r, err := d.Resolve(overrides)
	require.NoError(t, err)

	n := r.Nodes[0]
	assert.Equal(t, "cam1", n.Name)
	assert.Equal(t, "cam1", n.Namespace)
	assert.Equal(t, "optical", n.Parameters["camera_frame_id"])
	assert.Equal(t, 320, n.Parameters["width"])
	assert.Equal(t, "/cam1/image", n.Remappings["image_raw"])
	assert.Equal(t, "$(var camera_name)", d.Nodes[0].Name, "Resolve leaves the original untouched")

	_, err = d.Resolve(map[string]string{"nope": "1"})
	assert.ErrorIs(t, err, ErrUnknownArgument)
}

func TestParseOverrides(t *testing.T) {
	_, err := ParseOverrides([]string{"camera_name=cam1"})
	assert.ErrorIs(t, err, ErrBadOverride)
	_, err = ParseOverrides([]string{":=x"})
	assert.ErrorIs(t, err, ErrBadOverride)

	got, err := ParseOverrides([]string{"url:=file:///a:=b"})
	require.NoError(t, err)
	assert.Equal(t, "file:///a:=b", got["url"])
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"no nodes":       "arguments: []\n",
		"no executable":  "nodes:\n  - name: a\n",
		"no name":        "nodes:\n  - executable: x\n",
		"duplicate arg":  "arguments:\n  - name: a\n  - name: a\nnodes:\n  - name: n\n    executable: x\n",
		"unnamed arg":    "arguments:\n  - default: x\nnodes:\n  - name: n\n    executable: x\n",
		"malformed yaml": "nodes: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			var le *Error
			assert.True(t, errors.As(err, &le), "got %v", err)
		})
	}
}

func TestLoadSetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.launch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: []\n"), 0644))

	_, err := Load(path)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLauncherStartsCamera(t *testing.T) {
	bctx, err := bus.Init(context.Background())
	require.NoError(t, err)
	defer bctx.Shutdown()

	d, err := Parse([]byte(cameraLaunch))
	require.NoError(t, err)
	r, err := d.Resolve(map[string]string{"camera_name": "cam1", "frame_id": "optical"})
	require.NoError(t, err)

	s, err := NewLauncher(nil).Launch(context.Background(), bctx, r)
	require.NoError(t, err)

	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	cam, ok := nodes[0].(*camera.Camera)
	require.True(t, ok)
	assert.Equal(t, "/cam1/image", cam.ImageTopic())
	assert.False(t, cam.Streaming())
	w, _ := cam.Features().Int("Width")
	assert.Equal(t, int64(320), w)

	require.NoError(t, s.Shutdown())
	assert.Equal(t, 0, bctx.NodeCount())
}

func TestLauncherUnknownExecutable(t *testing.T) {
	bctx, err := bus.Init(context.Background())
	require.NoError(t, err)
	defer bctx.Shutdown()

	l := NewLauncher(nil)
	closed := false
	l.Register("ok", func(context.Context, *bus.Context, NodeSpec) (Process, error) {
		return &fakeProcess{name: "first", closed: &closed}, nil
	})

	d := &Description{Nodes: []NodeSpec{
		{Name: "first", Executable: "ok"},
		{Name: "second", Executable: "missing"},
	}}
	_, err = l.Launch(context.Background(), bctx, d)
	assert.ErrorIs(t, err, ErrUnknownExecutable)
	assert.True(t, closed, "started nodes are closed on failure")
}

type fakeProcess struct {
	name   string
	closed *bool
}

func (p *fakeProcess) Name() string { return p.name }

func (p *fakeProcess) Close() error {
	*p.closed = true
	return nil
}
