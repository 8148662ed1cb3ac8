package harness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/harness"
	"github.com/camharness/camharness-go/pkg/wire"
)

// injector publishes scripted frames on <camera>/image_raw.
type injector struct {
	t   *testing.T
	pub *bus.Publisher
	seq uint32
}

func newInjector(t *testing.T, f *harness.Fixture, cameraName string) *injector {
	t.Helper()
	node, err := f.Context.NewNode("injector")
	require.NoError(t, err)
	pub, err := node.CreatePublisher("/" + cameraName + "/image_raw")
	require.NoError(t, err)
	return &injector{t: t, pub: pub}
}

func (in *injector) send(stamp time.Time) uint32 {
	in.t.Helper()
	in.seq++
	data, err := frame.Encode(&frame.Frame{
		FrameID:  "camera_link",
		Seq:      in.seq,
		Stamp:    stamp,
		Width:    2,
		Height:   1,
		Encoding: frame.Mono8,
		Step:     2,
		Data:     []byte{byte(in.seq), 0},
	})
	require.NoError(in.t, err)
	require.NoError(in.t, in.pub.Publish(data))
	return in.seq
}

func TestSubscribeTwiceFails(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())

	require.NoError(t, f.Node.SubscribeImageRaw())
	assert.ErrorIs(t, f.Node.SubscribeImageRaw(), harness.ErrAlreadySubscribed)
	assert.True(t, f.Node.Subscribed(), "the first subscription stays active")
}

func TestUnsubscribeWithoutSubscription(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())

	assert.ErrorIs(t, f.Node.UnsubscribeImageRaw(), harness.ErrNotSubscribed)

	require.NoError(t, f.Node.SubscribeImageRaw())
	require.NoError(t, f.Node.UnsubscribeImageRaw())
	assert.ErrorIs(t, f.Node.UnsubscribeImageRaw(), harness.ErrNotSubscribed)
	assert.False(t, f.Node.Subscribed())
}

func TestNoLeakageAcrossSubscriptions(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera(), harness.WithGraceInterval(50*time.Millisecond))
	in := newInjector(t, f, f.Node.CameraNodeName())

	require.NoError(t, f.Node.SubscribeImageRaw())
	for i := 0; i < 5; i++ {
		in.send(time.Now())
	}
	require.Eventually(t, func() bool { return f.Node.Queue().Len() == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.Node.UnsubscribeImageRaw())
	assert.Equal(t, 0, f.Node.Queue().Len())

	// Published while unsubscribed: never delivered.
	in.send(time.Now())

	require.NoError(t, f.Node.SubscribeImageRaw())
	want := in.send(time.Now())

	got, err := f.Node.WaitForFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, want, got.Seq, "first frame after resubscribe must come from the new subscription")

	_, err = f.Node.WaitForFrame(50 * time.Millisecond)
	assert.ErrorIs(t, err, harness.ErrTimeout)
}

func TestUnsubscribeDuringFloodLeavesQueueEmpty(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera(), harness.WithGraceInterval(100*time.Millisecond))
	in := newInjector(t, f, f.Node.CameraNodeName())
	data, err := frame.Encode(&frame.Frame{Seq: 1, Stamp: time.Now(), Width: 1, Height: 1,
		Encoding: frame.Mono8, Step: 1, Data: []byte{0}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	flooding := make(chan struct{})
	go func() {
		defer close(flooding)
		for ctx.Err() == nil {
			_ = in.pub.Publish(data)
		}
	}()
	defer func() {
		cancel()
		<-flooding
	}()

	for cycle := 0; cycle < 100; cycle++ {
		require.NoError(t, f.Node.SubscribeImageRaw())
		require.Eventually(t, func() bool { return f.Node.Queue().Len() > 0 }, time.Second, time.Millisecond,
			"cycle %d: no frames delivered", cycle)

		require.NoError(t, f.Node.UnsubscribeImageRaw())
		if n := f.Node.Queue().Len(); n != 0 {
			t.Fatalf("cycle %d: %d frames left after unsubscribe", cycle, n)
		}
		_, err := f.Node.WaitForFrame(0)
		require.ErrorIs(t, err, harness.ErrTimeout, "cycle %d", cycle)
	}
}

func TestUndecodableSampleIsCounted(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())
	in := newInjector(t, f, f.Node.CameraNodeName())

	require.NoError(t, f.Node.SubscribeImageRaw())
	require.NoError(t, in.pub.Publish([]byte{0xff, 0x00}))
	want := in.send(time.Now())

	got, err := f.Node.WaitForFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, want, got.Seq)
	assert.Equal(t, uint64(1), f.Node.DecodeErrors())
}

func TestCallAndWaitPropagatesRemoteError(t *testing.T) {
	f := harness.Setup(t, harness.WithCameraConfig(camera.Config{}))
	cam := f.Node.CameraNodeName()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Node.WaitForService(ctx, cam+"/"+camera.ServiceFeatureIntSet))

	err := f.Node.CallServiceSync(ctx, cam+"/"+camera.ServiceFeatureIntSet,
		&camera.IntSetRequest{FeatureName: "Width", Value: 3}, nil)
	var se *bus.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, wire.StatusRejected, se.Status)
	assert.Equal(t, "/"+cam+"/"+camera.ServiceFeatureIntSet, se.Service)
	assert.NotErrorIs(t, err, harness.ErrTimeout)

	var iv camera.IntValue
	require.NoError(t, f.Node.CallServiceSync(ctx, cam+"/"+camera.ServiceFeatureIntGet,
		&camera.FeatureRequest{FeatureName: "Width"}, &iv))
	assert.Equal(t, int64(camera.DefaultWidth), iv.Value)

	_, err = f.Node.CallAndWait(ctx, "/nobody/home", nil)
	assert.ErrorIs(t, err, bus.ErrServiceNotFound)
}

func TestCallAndWaitTimeout(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())

	slow, err := f.Context.NewNode("slow")
	require.NoError(t, err)
	_, err = slow.CreateService("stall", func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	exec := bus.NewExecutor(f.Context.Logger())
	require.NoError(t, exec.Add(slow))
	spinCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = exec.Spin(spinCtx) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Node.CallAndWait(ctx, "/stall", nil)
	assert.ErrorIs(t, err, harness.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTestNodeLifecycle(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())
	node := f.Node

	assert.Equal(t, harness.StateRunning, node.State())
	assert.Equal(t, f.ID.TestNodeName(), node.Name())

	require.NoError(t, node.Close())
	require.NoError(t, node.Close())
	assert.Equal(t, harness.StateStopped, node.State())
	assert.Equal(t, "STOPPED", node.State().String())

	_, err := node.WaitForFrame(time.Millisecond)
	assert.ErrorIs(t, err, harness.ErrStopped)
	assert.ErrorIs(t, node.SubscribeImageRaw(), harness.ErrStopped)
	assert.ErrorIs(t, node.UnsubscribeImageRaw(), harness.ErrStopped)
	_, err = node.CallAndWait(context.Background(), "/x", nil)
	assert.True(t, errors.Is(err, harness.ErrStopped))
}

func TestNewTestNodeNameInUse(t *testing.T) {
	f := harness.Setup(t, harness.WithoutCamera())

	_, err := harness.NewTestNode(f.Context, f.ID.TestNodeName(), "cam", harness.DefaultConfig())
	assert.ErrorIs(t, err, bus.ErrNameInUse)
}
