package runner

import (
	"fmt"

	"github.com/camharness/camharness-go/internal/testharness/assertions"
	"github.com/camharness/camharness-go/internal/testharness/engine"
	"github.com/camharness/camharness-go/pkg/frame"
)

func (r *Runner) registerCheckers() {
	r.engine.RegisterChecker(CheckerFrameGeometry, checkFrameGeometry)
	r.engine.RegisterChecker(CheckerFrameEncoding, checkFrameEncoding)
	r.engine.RegisterChecker(CheckerFrameValid, checkFrameValid)
	r.engine.RegisterChecker(CheckerFramesOrdered, checkFramesOrdered)
}

func toExpect(key string, expected any, res *assertions.Result) *engine.ExpectResult {
	return &engine.ExpectResult{
		Key:      key,
		Expected: expected,
		Actual:   res.Actual,
		Passed:   res.Passed,
		Message:  res.Message,
	}
}

// lastFrames returns the frames of the latest wait step.
func lastFrames(key string, expected any, state *engine.ExecutionState) ([]*frame.Frame, *engine.ExpectResult) {
	s, err := session(state)
	if err != nil {
		return nil, &engine.ExpectResult{Key: key, Expected: expected, Message: err.Error()}
	}
	if len(s.frames) == 0 {
		return nil, &engine.ExpectResult{Key: key, Expected: expected, Message: "no frames received"}
	}
	return s.frames, nil
}

// checkFrameGeometry expects "WIDTHxHEIGHT" or a [width, height] list and
// checks every received frame.
func checkFrameGeometry(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	var w, h uint32
	switch v := expected.(type) {
	case string:
		if _, err := fmt.Sscanf(v, "%dx%d", &w, &h); err != nil {
			return &engine.ExpectResult{Key: key, Expected: expected, Message: fmt.Sprintf("bad geometry %q", v)}
		}
	case []any:
		if len(v) != 2 {
			return &engine.ExpectResult{Key: key, Expected: expected, Message: "geometry must be [width, height]"}
		}
		fw, okW := engine.ToFloat64(v[0])
		fh, okH := engine.ToFloat64(v[1])
		if !okW || !okH {
			return &engine.ExpectResult{Key: key, Expected: expected, Message: "geometry must be [width, height]"}
		}
		w, h = uint32(fw), uint32(fh)
	default:
		return &engine.ExpectResult{Key: key, Expected: expected, Message: fmt.Sprintf("unsupported geometry type %T", expected)}
	}

	frames, fail := lastFrames(key, expected, state)
	if fail != nil {
		return fail
	}
	for _, f := range frames {
		if res := assertions.FrameGeometry(f, w, h); !res.Passed {
			return toExpect(key, expected, res)
		}
	}
	return toExpect(key, expected, assertions.FrameGeometry(frames[len(frames)-1], w, h))
}

func checkFrameEncoding(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	name, ok := expected.(string)
	if !ok {
		return &engine.ExpectResult{Key: key, Expected: expected, Message: fmt.Sprintf("encoding must be a string, got %T", expected)}
	}
	enc := frame.Encoding(name)
	if pf, ok := frame.EncodingForPixelFormat(name); ok {
		enc = pf
	}
	frames, fail := lastFrames(key, expected, state)
	if fail != nil {
		return fail
	}
	for _, f := range frames {
		if res := assertions.FrameEncoding(f, enc); !res.Passed {
			return toExpect(key, expected, res)
		}
	}
	return toExpect(key, expected, assertions.FrameEncoding(frames[len(frames)-1], enc))
}

// checkFrameValid checks payload size against geometry. Expected false
// passes when some frame is malformed.
func checkFrameValid(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	want := expected != false
	frames, fail := lastFrames(key, expected, state)
	if fail != nil {
		return fail
	}
	for _, f := range frames {
		if res := assertions.FrameDataSize(f); !res.Passed {
			out := toExpect(key, expected, res)
			out.Passed = !want
			return out
		}
	}
	out := toExpect(key, expected, assertions.FrameDataSize(frames[len(frames)-1]))
	out.Passed = want
	return out
}

func checkFramesOrdered(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	want := expected != false
	frames, fail := lastFrames(key, expected, state)
	if fail != nil {
		return fail
	}
	out := toExpect(key, expected, assertions.FramesInOrder(frames))
	out.Passed = out.Passed == want
	return out
}
