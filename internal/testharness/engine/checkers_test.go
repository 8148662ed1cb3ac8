package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func stateWith(kv map[string]any) *ExecutionState {
	s := NewExecutionState(context.Background())
	for k, v := range kv {
		s.Set(k, v)
	}
	return s
}

func TestCheckerComparisons(t *testing.T) {
	s := stateWith(map[string]any{"value": int64(10)})
	tests := []struct {
		name     string
		checker  ExpectChecker
		expected any
		passed   bool
	}{
		{"gt pass", CheckerValueGT, 5, true},
		{"gt equal", CheckerValueGT, 10.0, false},
		{"lt pass", CheckerValueLT, uint32(11), true},
		{"lt fail", CheckerValueLT, 3, false},
		{"range in", CheckerValueInRange, map[string]any{"min": 0, "max": 10}, true},
		{"range out", CheckerValueInRange, map[string]any{"min": 11, "max": 20}, false},
		{"range bad", CheckerValueInRange, "0..10", false},
		{"gt non-numeric", CheckerValueGT, "five", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := tt.checker(tt.name, tt.expected, s); r.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", r.Passed, tt.passed, r.Message)
			}
		})
	}

	if r := CheckerValueGT("value_gt", 1, stateWith(nil)); r.Passed {
		t.Error("missing value passed")
	}
}

func TestCheckerContains(t *testing.T) {
	list := stateWith(map[string]any{"value": []string{"Mono8", "RGB8"}})
	if r := CheckerContains("contains", "RGB8", list); !r.Passed {
		t.Errorf("list: %s", r.Message)
	}
	if r := CheckerContains("contains", "BGR8", list); r.Passed {
		t.Error("list: BGR8 found")
	}
	str := stateWith(map[string]any{"value": "/cam1/image_raw"})
	if r := CheckerContains("contains", "image_raw", str); !r.Passed {
		t.Errorf("string: %s", r.Message)
	}
}

func TestCheckerErrors(t *testing.T) {
	failed := stateWith(map[string]any{"error": "service /cam1/features/int_set: REJECTED: value out of range"})
	clean := stateWith(map[string]any{"error": ""})

	if r := CheckerErrorContains("error_contains", "out of range", failed); !r.Passed {
		t.Errorf("error_contains: %s", r.Message)
	}
	if r := CheckerErrorContains("error_contains", "out of range", clean); r.Passed {
		t.Error("error_contains passed without error")
	}
	if r := CheckerNoError("no_error", true, clean); !r.Passed {
		t.Errorf("no_error: %s", r.Message)
	}
	if r := CheckerNoError("no_error", true, failed); r.Passed {
		t.Error("no_error passed with error")
	}
	if r := CheckerNoError("no_error", true, stateWith(nil)); !r.Passed {
		t.Error("no_error failed without error key")
	}
}

func TestCheckerDurationUnder(t *testing.T) {
	s := stateWith(map[string]any{"duration": 150 * time.Millisecond})
	if r := CheckerDurationUnder("duration_under", "200ms", s); !r.Passed {
		t.Errorf("200ms: %s", r.Message)
	}
	if r := CheckerDurationUnder("duration_under", 100, s); r.Passed {
		t.Error("100 ms passed")
	}
	if r := CheckerDurationUnder("duration_under", "soon", s); r.Passed {
		t.Error("bad limit passed")
	}
}

func TestCheckerSaveAsAndValueEquals(t *testing.T) {
	s := stateWith(map[string]any{InternalStepOutput: map[string]any{"value": int64(640), "unit": "px"}})
	if r := CheckerSaveAs("save_as", "width_before", s); !r.Passed {
		t.Fatalf("save_as: %s", r.Message)
	}

	s.Set(InternalStepOutput, map[string]any{"value": 640, "unit": "px"})
	if r := CheckerValueEquals("value_equals", "width_before", s); !r.Passed {
		t.Errorf("equal: %s", r.Message)
	}
	s.Set(InternalStepOutput, map[string]any{"value": 320, "unit": "px"})
	if r := CheckerValueEquals("value_equals", "width_before", s); r.Passed {
		t.Error("changed value matched")
	}
	if r := CheckerValueEquals("value_equals", "missing", s); r.Passed {
		t.Error("missing saved value matched")
	}
}

func TestCheckerFramesInOrder(t *testing.T) {
	base := time.Unix(100, 0)
	ordered := stateWith(map[string]any{"stamps": []time.Time{base, base.Add(time.Millisecond), base.Add(2 * time.Millisecond)}})
	if r := CheckerFramesInOrder("frames_in_order", true, ordered); !r.Passed {
		t.Errorf("ordered: %s", r.Message)
	}
	swapped := stateWith(map[string]any{"stamps": []time.Time{base.Add(time.Millisecond), base}})
	if r := CheckerFramesInOrder("frames_in_order", true, swapped); r.Passed {
		t.Error("swapped stamps passed")
	}
	if r := CheckerFramesInOrder("frames_in_order", false, swapped); !r.Passed {
		t.Error("inverted check failed")
	}

	seqs := stateWith(map[string]any{"seqs": []uint32{4, 5, 9}})
	if r := CheckerFramesInOrder("frames_in_order", true, seqs); !r.Passed {
		t.Errorf("seqs: %s", r.Message)
	}
	if r := CheckerFramesInOrder("frames_in_order", true, stateWith(nil)); r.Passed {
		t.Error("no frames passed")
	}
}

func TestDefaultChecker(t *testing.T) {
	s := stateWith(map[string]any{"streaming": true, "width": int64(640), "err": errors.New("x")})
	if r := defaultChecker("width", 640, s); !r.Passed {
		t.Errorf("numeric: %s", r.Message)
	}
	if r := defaultChecker("streaming", true, s); !r.Passed {
		t.Errorf("bool: %s", r.Message)
	}
	if r := defaultChecker("err", "present", s); !r.Passed {
		t.Errorf("present: %s", r.Message)
	}
	if r := defaultChecker("height", 480, s); r.Passed {
		t.Error("missing key passed")
	}
}
