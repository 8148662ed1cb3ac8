package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/engine"
	"github.com/camharness/camharness-go/internal/testharness/loader"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/harness"
	"github.com/camharness/camharness-go/pkg/wire"
)

const defaultWaitTimeout = time.Second

func (r *Runner) registerHandlers() {
	r.engine.RegisterHandler(ActionSubscribeImageRaw, r.handleSubscribe)
	r.engine.RegisterHandler(ActionUnsubscribeImageRaw, r.handleUnsubscribe)
	r.engine.RegisterHandler(ActionWaitForFrame, r.handleWaitForFrame)
	r.engine.RegisterHandler(ActionWaitForFrames, r.handleWaitForFrames)
	r.engine.RegisterHandler(ActionClearQueue, r.handleClearQueue)
	r.engine.RegisterHandler(ActionQueueLength, r.handleQueueLength)
	r.engine.RegisterHandler(ActionCallService, r.handleCallService)
	r.engine.RegisterHandler(ActionGetFeature, r.handleGetFeature)
	r.engine.RegisterHandler(ActionSetFeature, r.handleSetFeature)
	r.engine.RegisterHandler(ActionStreamStart, r.handleStream(camera.ServiceStreamStart, true))
	r.engine.RegisterHandler(ActionStreamStop, r.handleStream(camera.ServiceStreamStop, false))
	r.engine.RegisterHandler(ActionPublishFrames, r.handlePublishFrames)
	r.engine.RegisterHandler(ActionNodeIdentity, r.handleNodeIdentity)
	r.engine.RegisterHandler(ActionWait, r.handleWait)
}

// outcome folds err into the outputs when the step expects an error, so
// scenarios can assert on failures; otherwise err fails the step.
func outcome(step *loader.Step, outputs map[string]any, err error) (map[string]any, error) {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	if err == nil {
		outputs[engine.KeyError] = ""
		outputs[KeyErrorKind] = ""
		return outputs, nil
	}
	if !expectsError(step) {
		return nil, err
	}
	outputs[engine.KeyError] = err.Error()
	outputs[KeyErrorKind] = errorKind(err)
	return outputs, nil
}

func expectsError(step *loader.Step) bool {
	for _, key := range []string{engine.CheckerNameErrorContains, engine.KeyError, KeyErrorKind} {
		if _, ok := step.Expect[key]; ok {
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	var se *bus.ServiceError
	switch {
	case errors.Is(err, harness.ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, harness.ErrAlreadySubscribed):
		return ErrorKindAlreadySubscribed
	case errors.Is(err, harness.ErrNotSubscribed):
		return ErrorKindNotSubscribed
	case errors.Is(err, harness.ErrStopped):
		return ErrorKindStopped
	case errors.As(err, &se):
		return ErrorKindRemoteCall
	default:
		return ErrorKindOther
	}
}

func paramDuration(params map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := engine.ToFloat64(params[key]); ok && v >= 0 {
		return time.Duration(v * float64(time.Millisecond))
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	if v, ok := engine.ToFloat64(params[key]); ok {
		return int(v)
	}
	return def
}

func paramString(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func (r *Runner) handleSubscribe(_ context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	err = s.node.SubscribeImageRaw()
	return outcome(step, map[string]any{KeySubscribed: s.node.Subscribed()}, err)
}

func (r *Runner) handleUnsubscribe(_ context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	err = s.node.UnsubscribeImageRaw()
	return outcome(step, map[string]any{
		KeySubscribed: s.node.Subscribed(),
		KeyCount:      s.node.Queue().Len(),
	}, err)
}

// frameOutputs describes f as step outputs.
func frameOutputs(f *frame.Frame) map[string]any {
	return map[string]any{
		KeyReceived:  true,
		KeySeq:       f.Seq,
		KeyStamp:     f.Stamp,
		KeyFrameID:   f.FrameID,
		KeyWidth:     f.Width,
		KeyHeight:    f.Height,
		KeyEncoding:  string(f.Encoding),
		KeyStep:      f.Step,
		KeySize:      f.Size(),
		KeyDigest:    f.Digest(),
		KeyLatencyMs: float64(f.Latency()) / float64(time.Millisecond),
	}
}

func (r *Runner) handleWaitForFrame(_ context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	timeout := paramDuration(step.Params, ParamTimeoutMs, defaultWaitTimeout)
	start := time.Now()
	f, err := s.node.WaitForFrame(timeout)
	if err != nil {
		s.frames = nil
		return outcome(step, map[string]any{KeyReceived: false, engine.KeyDuration: time.Since(start)}, err)
	}
	s.frames = []*frame.Frame{f}
	outputs := frameOutputs(f)
	outputs[engine.KeyDuration] = time.Since(start)
	outputs[engine.KeyValue] = f.Seq
	return outcome(step, outputs, nil)
}

// handleWaitForFrames collects count frames, each within timeout_ms.
func (r *Runner) handleWaitForFrames(_ context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	count := paramInt(step.Params, ParamCount, 1)
	timeout := paramDuration(step.Params, ParamTimeoutMs, defaultWaitTimeout)

	start := time.Now()
	frames := make([]*frame.Frame, 0, count)
	stamps := make([]time.Time, 0, count)
	seqs := make([]uint32, 0, count)
	for len(frames) < count {
		f, werr := s.node.WaitForFrame(timeout)
		if werr != nil {
			err = fmt.Errorf("frame %d of %d: %w", len(frames)+1, count, werr)
			break
		}
		frames = append(frames, f)
		stamps = append(stamps, f.Stamp)
		seqs = append(seqs, f.Seq)
	}
	s.frames = frames
	return outcome(step, map[string]any{
		KeyCount:           len(frames),
		engine.KeyValue:    len(frames),
		engine.KeyStamps:   stamps,
		engine.KeySeqs:     seqs,
		engine.KeyDuration: time.Since(start),
	}, err)
}

func (r *Runner) handleClearQueue(_ context.Context, _ *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	n := s.node.ClearQueue()
	return map[string]any{KeyCleared: n, engine.KeyValue: n}, nil
}

func (r *Runner) handleQueueLength(_ context.Context, _ *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	return map[string]any{engine.KeyValue: s.node.Queue().Len()}, nil
}

// cameraService returns the service name as seen from the test node.
func (s *caseSession) cameraService(name string) string {
	return s.cameraName + "/" + name
}

// call performs a typed camera service call and classifies failures.
func (s *caseSession) call(ctx context.Context, service string, req, resp any) error {
	return classifyCallError(s.node.CallServiceSync(ctx, s.cameraService(service), req, resp))
}

// handleCallService calls any camera service. The request is built from
// feature (a FeatureRequest) or file_name (a SettingsRequest); without
// either the call carries no payload.
func (r *Runner) handleCallService(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	service := paramString(step.Params, ParamService)
	if service == "" {
		return nil, Scenario(errors.New("call_service: service is required"))
	}

	var payload []byte
	switch {
	case paramString(step.Params, ParamFeature) != "":
		payload, err = wire.Marshal(&camera.FeatureRequest{FeatureName: paramString(step.Params, ParamFeature)})
	case paramString(step.Params, ParamFileName) != "":
		payload, err = wire.Marshal(&camera.SettingsRequest{FileName: paramString(step.Params, ParamFileName)})
	}
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.node.CallAndWait(ctx, s.cameraService(service), payload)
	return outcome(step, map[string]any{
		KeyResponse:        len(resp),
		engine.KeyDuration: time.Since(start),
	}, classifyCallError(err))
}

func (r *Runner) handleGetFeature(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	name := paramString(step.Params, ParamFeature)
	if name == "" {
		return nil, Scenario(errors.New("get_feature: feature is required"))
	}
	req := &camera.FeatureRequest{FeatureName: name}

	var value any
	switch typ := paramString(step.Params, ParamType); typ {
	case "", "int":
		var resp camera.IntValue
		err = s.call(ctx, camera.ServiceFeatureIntGet, req, &resp)
		value = resp.Value
	case "float":
		var resp camera.FloatValue
		err = s.call(ctx, camera.ServiceFeatureFloatGet, req, &resp)
		value = resp.Value
	case "string":
		var resp camera.StringValue
		err = s.call(ctx, camera.ServiceFeatureStringGet, req, &resp)
		value = resp.Value
	case "bool":
		var resp camera.BoolValue
		err = s.call(ctx, camera.ServiceFeatureBoolGet, req, &resp)
		value = resp.Value
	case "enum":
		var resp camera.EnumValue
		err = s.call(ctx, camera.ServiceFeatureEnumGet, req, &resp)
		value = resp.Value
	default:
		return nil, Scenario(fmt.Errorf("get_feature: unknown type %q", typ))
	}
	if err != nil {
		return outcome(step, nil, err)
	}
	return outcome(step, map[string]any{engine.KeyValue: value}, nil)
}

func (r *Runner) handleSetFeature(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	name := paramString(step.Params, ParamFeature)
	if name == "" {
		return nil, Scenario(errors.New("set_feature: feature is required"))
	}
	raw, ok := step.Params[ParamValue]
	if !ok {
		return nil, Scenario(errors.New("set_feature: value is required"))
	}

	typ := paramString(step.Params, ParamType)
	switch typ {
	case "", "int":
		v, ok := engine.ToFloat64(raw)
		if !ok {
			return nil, Scenario(fmt.Errorf("set_feature: %v is not a number", raw))
		}
		err = s.call(ctx, camera.ServiceFeatureIntSet, &camera.IntSetRequest{FeatureName: name, Value: int64(v)}, nil)
	case "float":
		v, ok := engine.ToFloat64(raw)
		if !ok {
			return nil, Scenario(fmt.Errorf("set_feature: %v is not a number", raw))
		}
		err = s.call(ctx, camera.ServiceFeatureFloatSet, &camera.FloatSetRequest{FeatureName: name, Value: v}, nil)
	case "string":
		err = s.call(ctx, camera.ServiceFeatureStringSet, &camera.StringSetRequest{FeatureName: name, Value: fmt.Sprint(raw)}, nil)
	case "bool":
		v, ok := raw.(bool)
		if !ok {
			return nil, Scenario(fmt.Errorf("set_feature: %v is not a bool", raw))
		}
		err = s.call(ctx, camera.ServiceFeatureBoolSet, &camera.BoolSetRequest{FeatureName: name, Value: v}, nil)
	case "enum":
		err = s.call(ctx, camera.ServiceFeatureEnumSet, &camera.EnumSetRequest{FeatureName: name, Value: fmt.Sprint(raw)}, nil)
	default:
		return nil, Scenario(fmt.Errorf("set_feature: unknown type %q", typ))
	}
	return outcome(step, nil, err)
}

func (r *Runner) handleStream(service string, want bool) engine.ActionHandler {
	return func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		s, err := session(state)
		if err != nil {
			return nil, err
		}
		var resp camera.StreamStatus
		var req any
		if want {
			req = &camera.StreamStartRequest{}
		}
		err = s.call(ctx, service, req, &resp)
		return outcome(step, map[string]any{KeyStreaming: resp.Streaming}, err)
	}
}

// handlePublishFrames makes the launched camera publish count test-pattern
// frames with increasing stamps, interval_ms apart.
func (r *Runner) handlePublishFrames(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	if s.camera == nil {
		return nil, Scenario(errors.New("publish_frames needs a launched camera"))
	}
	count := paramInt(step.Params, ParamCount, 1)
	interval := paramDuration(step.Params, ParamIntervalMs, 0)

	base := time.Now()
	for i := range count {
		f, err := s.camera.Render(uint32(i+1), base.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return nil, err
		}
		if err := s.camera.Publish(f); err != nil {
			return nil, err
		}
		if interval > 0 && i < count-1 {
			if err := contextSleep(ctx, interval); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{KeyPublished: count}, nil
}

func (r *Runner) handleNodeIdentity(_ context.Context, _ *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	s, err := session(state)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		engine.KeyValue: s.node.Name(),
		StateHarnessID:  string(s.id),
		StateNodeName:   s.node.Name(),
		StateCameraName: s.node.CameraNodeName(),
	}, nil
}

func (r *Runner) handleWait(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	d := paramDuration(step.Params, ParamDurationMs, time.Second)
	if err := contextSleep(ctx, d); err != nil {
		return nil, err
	}
	return map[string]any{KeyWaited: true, engine.KeyDuration: d}, nil
}
