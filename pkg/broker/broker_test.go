package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/pkg/broker"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/discovery"
	"github.com/camharness/camharness-go/pkg/discovery/mocks"
	"github.com/camharness/camharness-go/pkg/transport"
	"github.com/camharness/camharness-go/pkg/wire"
)

func startBroker(t *testing.T, mutate ...func(*broker.Config)) *broker.Broker {
	t.Helper()
	cfg := broker.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	for _, m := range mutate {
		m(&cfg)
	}
	b := broker.New(cfg)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func remoteContext(t *testing.T, b *broker.Broker) *bus.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bctx, err := bus.Init(ctx, bus.WithBroker(b.Addr().String(), bus.RemoteConfig{
		Conn: transport.ConnConfig{DisableKeepAlive: true},
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bctx.Shutdown() })
	return bctx
}

func spinNode(t *testing.T, nodes ...*bus.Node) {
	t.Helper()
	exec := bus.NewExecutor(nil)
	for _, n := range nodes {
		require.NoError(t, exec.Add(n))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Spin(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRemotePublishSubscribe(t *testing.T) {
	b := startBroker(t)
	camCtx := remoteContext(t, b)
	testCtx := remoteContext(t, b)

	cam, err := camCtx.NewNode("cam1")
	require.NoError(t, err)
	test, err := testCtx.NewNode("test")
	require.NoError(t, err)

	received := make(chan bus.Message, 10)
	_, err = test.CreateSubscription("cam1/image_raw", 10, func(m bus.Message) { received <- m })
	require.NoError(t, err)
	spinNode(t, test)

	pub, err := cam.CreatePublisher("~/image_raw")
	require.NoError(t, err)
	for _, s := range []string{"f1", "f2", "f3"} {
		require.NoError(t, pub.Publish([]byte(s)))
	}

	var lastSeq uint32
	for _, want := range []string{"f1", "f2", "f3"} {
		select {
		case m := <-received:
			assert.Equal(t, want, string(m.Data))
			assert.Greater(t, m.Seq, lastSeq)
			lastSeq = m.Seq
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestRemoteNodeNamesAreGlobal(t *testing.T) {
	b := startBroker(t)
	a := remoteContext(t, b)
	c := remoteContext(t, b)

	_, err := a.NewNode("cam1")
	require.NoError(t, err)
	_, err = c.NewNode("cam1")
	assert.ErrorIs(t, err, bus.ErrNameInUse)

	nodes, err := c.Graph().Nodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/cam1"}, nodes)
}

func TestRemoteServiceCall(t *testing.T) {
	b := startBroker(t)
	camCtx := remoteContext(t, b)
	testCtx := remoteContext(t, b)

	cam, err := camCtx.NewNode("cam1")
	require.NoError(t, err)
	_, err = cam.CreateService("~/stream_start", func(_ context.Context, req []byte) ([]byte, error) {
		if string(req) == "busy" {
			return nil, bus.Reject("stream already running")
		}
		return []byte("started"), nil
	})
	require.NoError(t, err)
	spinNode(t, cam)

	test, err := testCtx.NewNode("test")
	require.NoError(t, err)
	spinNode(t, test)

	client, err := test.CreateClient("cam1/stream_start")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, client.WaitForService(ctx, 20*time.Millisecond))

	resp, err := client.Call(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "started", string(resp))

	_, err = client.Call(ctx, []byte("busy"))
	var se *bus.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, wire.StatusRejected, se.Status)
	assert.Equal(t, "stream already running", se.Message)
}

func TestBrokerLocalAndRemoteNodes(t *testing.T) {
	b := startBroker(t)

	local, err := bus.Init(context.Background(), bus.WithGraph(b.Graph()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Shutdown() })
	cam, err := local.NewNode("cam1")
	require.NoError(t, err)

	remote := remoteContext(t, b)
	test, err := remote.NewNode("test")
	require.NoError(t, err)
	received := make(chan bus.Message, 1)
	_, err = test.CreateSubscription("/cam1/image_raw", 1, func(m bus.Message) { received <- m })
	require.NoError(t, err)
	spinNode(t, test)

	pub, err := cam.CreatePublisher("~/image_raw")
	require.NoError(t, err)
	require.NoError(t, pub.Publish([]byte("local")))

	select {
	case m := <-received:
		assert.Equal(t, "local", string(m.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("remote subscriber did not receive local publish")
	}
}

func TestPeerDisconnectReleasesNames(t *testing.T) {
	b := startBroker(t)
	first := remoteContext(t, b)
	_, err := first.NewNode("cam1")
	require.NoError(t, err)

	require.NoError(t, first.Shutdown())
	require.Eventually(t, func() bool { return b.PeerCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	second := remoteContext(t, b)
	_, err = second.NewNode("cam1")
	assert.NoError(t, err)
}

func TestRemoteUnsubscribeStopsDelivery(t *testing.T) {
	b := startBroker(t)
	bctx := remoteContext(t, b)
	n, err := bctx.NewNode("test")
	require.NoError(t, err)

	sub, err := n.CreateSubscription("/t", 1, func(bus.Message) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return b.Graph().Subscriptions().CountTopic("/t") == 1
	}, time.Second, 10*time.Millisecond)

	n.DestroySubscription(sub)
	require.Eventually(t, func() bool {
		return b.Graph().Subscriptions().CountTopic("/t") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBrokerAdvertises(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.MatchedBy(func(info *discovery.BrokerInfo) bool {
		return info.InstanceID == "lab-broker" && info.Port != 0
	})).Return(nil).Once()
	adv.EXPECT().Update(mock.Anything).Return(nil).Maybe()
	adv.EXPECT().Stop().Return(nil).Once()

	b := startBroker(t, func(c *broker.Config) {
		c.InstanceID = "lab-broker"
		c.Advertiser = adv
	})
	bctx := remoteContext(t, b)
	_, err := bctx.NewNode("cam1")
	require.NoError(t, err)

	require.NoError(t, b.Stop())
}
