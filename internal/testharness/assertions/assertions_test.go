package assertions_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/assertions"
	"github.com/camharness/camharness-go/pkg/frame"
)

func TestAssertValue(t *testing.T) {
	t.Run("Equal", func(t *testing.T) {
		if r := assertions.Equal(42, 42); !r.Passed {
			t.Error("Equal(42, 42) should pass")
		}
		if r := assertions.Equal(640, uint32(640)); !r.Passed {
			t.Error("Equal across numeric types should pass")
		}
		if r := assertions.Equal([]string{"a"}, []string{"a"}); !r.Passed {
			t.Error("Equal slices should pass")
		}
		if r := assertions.Equal(42, 43); r.Passed {
			t.Error("Equal(42, 43) should fail")
		}
		if r := assertions.Equal("42", 42); r.Passed {
			t.Error("string and int should differ")
		}
	})

	t.Run("True", func(t *testing.T) {
		if r := assertions.True(true); !r.Passed {
			t.Error("True(true) should pass")
		}
		if r := assertions.True(false); r.Passed {
			t.Error("True(false) should fail")
		}
	})

	t.Run("Nil/NotNil", func(t *testing.T) {
		var f *frame.Frame
		var m map[string]int
		if r := assertions.Nil(nil); !r.Passed {
			t.Error("Nil(nil) should pass")
		}
		if r := assertions.Nil(f); !r.Passed {
			t.Error("typed nil pointer should pass")
		}
		if r := assertions.Nil(m); !r.Passed {
			t.Error("nil map should pass")
		}
		if r := assertions.Nil(42); r.Passed {
			t.Error("Nil(42) should fail")
		}
		if r := assertions.NotNil(&frame.Frame{}); !r.Passed {
			t.Error("NotNil(frame) should pass")
		}
	})
}

func TestAssertContains(t *testing.T) {
	tests := []struct {
		container any
		element   any
		passed    bool
	}{
		{"/cam1/image_raw", "image_raw", true},
		{"/cam1/image_raw", "camera_info", false},
		{[]string{"Width", "Height"}, "Height", true},
		{[]int64{8, 16}, 16, true},
		{[]string{"Width"}, "Gain", false},
		{map[string]int{"Width": 1}, "Width", true},
		{map[string]int{"Width": 1}, 5, false},
		{42, 4, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%v", tt.container, tt.element), func(t *testing.T) {
			if r := assertions.Contains(tt.container, tt.element); r.Passed != tt.passed {
				t.Errorf("passed = %v, want %v: %s", r.Passed, tt.passed, r.Message)
			}
		})
	}
}

func TestAssertNumeric(t *testing.T) {
	if r := assertions.InRange(30.0, 1, 200); !r.Passed {
		t.Error("30 in [1, 200] should pass")
	}
	if r := assertions.InRange(uint32(0), 1, 200); r.Passed {
		t.Error("0 in [1, 200] should fail")
	}
	if r := assertions.InRange("30", 1, 200); r.Passed {
		t.Error("non-numeric should fail")
	}
}

func TestAssertWithin(t *testing.T) {
	if r := assertions.Within(210*time.Millisecond, 200*time.Millisecond, 50*time.Millisecond); !r.Passed {
		t.Error(r.Message)
	}
	if r := assertions.Within(time.Second, 200*time.Millisecond, 50*time.Millisecond); r.Passed {
		t.Error("1s should not be within 200ms +/- 50ms")
	}
}

func TestAssertErrors(t *testing.T) {
	sentinel := errors.New("timeout")
	wrapped := fmt.Errorf("wait_for_frame: %w", sentinel)

	if r := assertions.NoError(nil); !r.Passed {
		t.Error("NoError(nil) should pass")
	}
	if r := assertions.NoError(wrapped); r.Passed {
		t.Error("NoError(err) should fail")
	}
	if r := assertions.ErrorIs(wrapped, sentinel); !r.Passed {
		t.Error("ErrorIs should unwrap")
	}
	if r := assertions.ErrorContains(wrapped, "wait_for_frame"); !r.Passed {
		t.Error("ErrorContains should match")
	}
	if r := assertions.ErrorContains(nil, "x"); r.Passed {
		t.Error("ErrorContains(nil) should fail")
	}
	if r := assertions.Len([]int{1, 2}, 2); !r.Passed {
		t.Error("Len should pass")
	}
}

func TestResultErrAndAll(t *testing.T) {
	if err := assertions.Pass("ok").Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
	err := assertions.Equal(1, 2).Err()
	if err == nil || err.Error() != "values are not equal: expected 1, got 2" {
		t.Errorf("Err() = %v", err)
	}

	r := assertions.All(assertions.True(true), assertions.Equal(1, 2), assertions.True(false))
	if r.Passed || r.Message != "values are not equal" {
		t.Errorf("All = %+v", r)
	}
	if !assertions.All(assertions.True(true)).Passed {
		t.Error("All of passing results should pass")
	}
}

func testFrame(seq uint32, stamp time.Time) *frame.Frame {
	return &frame.Frame{
		Seq: seq, Stamp: stamp,
		Width: 4, Height: 2, Encoding: frame.Mono8, Step: 4,
		Data: make([]byte, 8),
	}
}

func TestAssertFrame(t *testing.T) {
	f := testFrame(1, time.Unix(10, 0))

	if r := assertions.FrameGeometry(f, 4, 2); !r.Passed {
		t.Error(r.Message)
	}
	if r := assertions.FrameGeometry(f, 640, 480); r.Passed {
		t.Error("wrong geometry should fail")
	}
	if r := assertions.FrameGeometry(nil, 4, 2); r.Passed {
		t.Error("nil frame should fail")
	}
	if r := assertions.FrameEncoding(f, frame.Mono8); !r.Passed {
		t.Error(r.Message)
	}
	if r := assertions.FrameEncoding(f, frame.RGB8); r.Passed {
		t.Error("wrong encoding should fail")
	}
	if r := assertions.FrameDataSize(f); !r.Passed {
		t.Error(r.Message)
	}
	short := testFrame(2, time.Unix(11, 0))
	short.Data = short.Data[:5]
	if r := assertions.FrameDataSize(short); r.Passed {
		t.Error("short payload should fail")
	}
}

func TestAssertFramesInOrder(t *testing.T) {
	base := time.Unix(100, 0)
	frames := []*frame.Frame{
		testFrame(1, base),
		testFrame(2, base.Add(10*time.Millisecond)),
		testFrame(3, base.Add(20*time.Millisecond)),
	}
	if r := assertions.FramesInOrder(frames); !r.Passed {
		t.Error(r.Message)
	}
	frames[1], frames[2] = frames[2], frames[1]
	if r := assertions.FramesInOrder(frames); r.Passed {
		t.Error("swapped frames should fail")
	}
	if r := assertions.FramesInOrder(nil); !r.Passed {
		t.Error("no frames are trivially in order")
	}
}
