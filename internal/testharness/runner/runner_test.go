package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/camharness/camharness-go/internal/testharness/engine"
	"github.com/camharness/camharness-go/internal/testharness/loader"
	scripted "github.com/camharness/camharness-go/internal/testharness/mock"
	"github.com/camharness/camharness-go/internal/testharness/reporter"
	"github.com/camharness/camharness-go/pkg/broker"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/discovery"
	"github.com/camharness/camharness-go/pkg/discovery/mocks"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/harness"
	"github.com/camharness/camharness-go/pkg/wire"
)

func newTestRunner(t *testing.T, mutate func(*Config)) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	config := DefaultConfig()
	config.IDGenerator = harness.FixedIdentifier("h1")
	config.Output = &out
	config.Timeout = 10 * time.Second
	config.GraceInterval = 50 * time.Millisecond
	if mutate != nil {
		mutate(config)
	}
	r, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, &out
}

func loadCase(t *testing.T, file string) *loader.TestCase {
	t.Helper()
	tc, err := loader.LoadTestCase(filepath.Join("testdata", file))
	require.NoError(t, err)
	return tc
}

func requirePassed(t *testing.T, result *engine.TestResult) {
	t.Helper()
	for _, sr := range result.StepResults {
		if !sr.Passed {
			t.Logf("step %d (%s): %v", sr.StepIndex+1, sr.Step.Action, sr.Error)
		}
	}
	require.True(t, result.Passed, "case %s: %v", result.TestCase.ID, result.Error)
}

func TestFrameDeliveryScenario(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	result := r.Engine().Run(context.Background(), loadCase(t, "frame-delivery.yaml"))
	requirePassed(t, result)

	last := result.StepResults[len(result.StepResults)-1]
	assert.Equal(t, ErrorKindTimeout, last.Output[KeyErrorKind])
	assert.GreaterOrEqual(t, last.Output[engine.KeyDuration].(time.Duration), 200*time.Millisecond)

	waited := result.StepResults[3].Output
	assert.Equal(t, []uint32{1, 2, 3}, waited[engine.KeySeqs])
}

func TestSubscriptionScenario(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	requirePassed(t, r.Engine().Run(context.Background(), loadCase(t, "subscription.yaml")))
}

func TestFeatureScenario(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	requirePassed(t, r.Engine().Run(context.Background(), loadCase(t, "features.yaml")))
}

func TestRunReportsSuite(t *testing.T) {
	r, out := newTestRunner(t, func(c *Config) {
		c.TestDir = "testdata"
		c.OutputFormat = reporter.FormatJSON
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.PassCount, "failures: %d", result.FailCount)
	assert.Equal(t, 1, result.SkipCount)
	assert.Contains(t, result.SuiteName, "in-process")

	var report reporter.JSONSuiteResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Len(t, report.Tests, 4)
}

func TestRunFiltersByTag(t *testing.T) {
	r, _ := newTestRunner(t, func(c *Config) {
		c.TestDir = "testdata"
		c.Tags = "smoke"
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "TC-FRAME-001", result.Results[0].TestCase.ID)
}

func TestRunNoMatches(t *testing.T) {
	r, _ := newTestRunner(t, func(c *Config) {
		c.TestDir = "testdata"
		c.Pattern = "TC-NOPE-*"
	})
	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "no test cases found")
}

func TestUnexpectedErrorFailsStep(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	tc := &loader.TestCase{
		ID:     "TC-ERR",
		Camera: map[string]any{"autostream": 0},
		Steps: []loader.Step{
			{Action: ActionSubscribeImageRaw},
			{Action: ActionWaitForFrame, Params: map[string]any{ParamTimeoutMs: 50}},
		},
	}
	result := r.Engine().Run(context.Background(), tc)
	assert.False(t, result.Passed)
	assert.ErrorIs(t, result.Error, harness.ErrTimeout)
}

func TestBadCameraParametersFailSetup(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	tc := &loader.TestCase{
		ID:     "TC-BAD",
		Camera: map[string]any{"lens": "fisheye"},
		Steps:  []loader.Step{{Action: ActionNodeIdentity}},
	}
	result := r.Engine().Run(context.Background(), tc)
	assert.False(t, result.Passed)
	assert.Equal(t, ErrCatScenario, Category(result.Error))
	assert.ErrorContains(t, result.Error, "lens")
}

func TestInvalidIdentifierFailsSetup(t *testing.T) {
	r, _ := newTestRunner(t, func(c *Config) {
		c.IDGenerator = harness.FixedIdentifier("not valid!")
	})
	result := r.Engine().Run(context.Background(), &loader.TestCase{
		ID:    "TC-ID",
		Steps: []loader.Step{{Action: ActionNodeIdentity}},
	})
	assert.False(t, result.Passed)
	assert.ErrorIs(t, result.Error, harness.ErrInvalidIdentifier)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{harness.ErrTimeout, ErrorKindTimeout},
		{harness.ErrAlreadySubscribed, ErrorKindAlreadySubscribed},
		{harness.ErrNotSubscribed, ErrorKindNotSubscribed},
		{harness.ErrStopped, ErrorKindStopped},
		{Camera(&bus.ServiceError{Service: "/cam/stream_start", Status: wire.StatusRejected}), ErrorKindRemoteCall},
		{errors.New("boom"), ErrorKindOther},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestResolveTargetFromDiscovery(t *testing.T) {
	browser := mocks.NewMockBrowser(t)
	results := make(chan *discovery.BrokerService, 1)
	results <- &discovery.BrokerService{InstanceName: "camsim", InstanceID: "b1", Host: "camsim.local", Port: 7447}
	browser.EXPECT().Browse(mock.Anything).Return((<-chan *discovery.BrokerService)(results), nil).Once()
	browser.EXPECT().Stop().Return().Maybe()

	r, _ := newTestRunner(t, func(c *Config) {
		c.Discover = true
		c.Browser = browser
	})
	require.NoError(t, r.resolveTarget(context.Background()))
	assert.NotEmpty(t, r.Target())

	// Cached: a second call must not browse again.
	require.NoError(t, r.resolveTarget(context.Background()))
}

func TestResolveTargetKeepsExplicitTarget(t *testing.T) {
	r, _ := newTestRunner(t, func(c *Config) {
		c.Target = "127.0.0.1:7447"
		c.Discover = true
	})
	require.NoError(t, r.resolveTarget(context.Background()))
	assert.Equal(t, "127.0.0.1:7447", r.Target())
}

const scriptedCase = `
id: TC-SCRIPTED-001
name: Scripted camera behind a broker
steps:
  - action: stream_start
    expect:
      streaming: true
  - action: subscribe_image_raw
  - action: wait_for_frame
    params:
      timeout_ms: 2000
    expect:
      seq: 7
      frame_geometry: 4x2
  - action: stream_stop
    expect:
      error_kind: remote_call_failure
      error_contains: busy
`

// TestRunAgainstScriptedCamera targets a camera that already lives behind
// a broker and only answers what the test scripted.
func TestRunAgainstScriptedCamera(t *testing.T) {
	config := broker.DefaultConfig()
	config.Address = "127.0.0.1:0"
	b := broker.New(config)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })

	bctx, err := bus.Init(context.Background(), bus.WithGraph(b.Graph()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bctx.Shutdown() })
	cam, err := scripted.NewCamera(bctx, "front")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cam.Close() })

	require.NoError(t, cam.HandleService(camera.ServiceStreamStart, func([]byte) ([]byte, error) {
		go func() {
			// Give the harness time to subscribe before the frame goes out.
			time.Sleep(200 * time.Millisecond)
			_ = cam.Inject(&frame.Frame{Seq: 7, Width: 4, Height: 2, Encoding: frame.Mono8,
				Step: 4, Data: make([]byte, 8)})
		}()
		return wire.Marshal(&camera.StreamStatus{Streaming: true})
	}))
	require.NoError(t, cam.Reject(camera.ServiceStreamStop, "device busy"))

	tc, err := loader.ParseTestCase([]byte(scriptedCase))
	require.NoError(t, err)

	r, _ := newTestRunner(t, func(c *Config) {
		c.Target = b.Addr().String()
		c.CameraName = "front"
	})
	result := r.Engine().Run(context.Background(), tc)
	requirePassed(t, result)

	assert.Len(t, cam.Calls(camera.ServiceStreamStart), 1)
	assert.Len(t, cam.Calls(camera.ServiceStreamStop), 1)
}
