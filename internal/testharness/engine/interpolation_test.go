package engine

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestInterpolate(t *testing.T) {
	s := NewExecutionState(context.Background())
	s.Set("camera", "vimbax_camera_test_h1")
	s.Set("width", int64(640))
	s.Set("rate", 29.5)

	tests := map[string]string{
		"{{ camera }}/image_raw":       "vimbax_camera_test_h1/image_raw",
		"{{camera}}:{{ width }}":       "vimbax_camera_test_h1:640",
		"rate {{ rate }}":              "rate 29.5",
		"plain":                        "plain",
		"{{ unknown }}/x":              "{{ unknown }}/x",
		"{{ camera }}/{{ missing }}/y": "vimbax_camera_test_h1/{{ missing }}/y",
	}
	for in, want := range tests {
		if got := Interpolate(in, s); got != want {
			t.Errorf("Interpolate(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Interpolate("{{ camera }}", nil); got != "{{ camera }}" {
		t.Errorf("nil state: %q", got)
	}
}

func TestInterpolateParamsKeepsTypes(t *testing.T) {
	s := NewExecutionState(context.Background())
	s.Set("width", int64(640))
	s.Set("timeout", 200*time.Millisecond)

	params := map[string]any{
		"value":   "{{ width }}",
		"label":   "w={{ width }}",
		"nested":  map[string]any{"t": " {{ timeout }} "},
		"list":    []any{"{{ width }}", 3},
		"literal": 7,
	}
	got := InterpolateParams(params, s)

	if got["value"] != int64(640) {
		t.Errorf("value = %#v", got["value"])
	}
	if got["label"] != "w=640" {
		t.Errorf("label = %#v", got["label"])
	}
	if got["nested"].(map[string]any)["t"] != 200*time.Millisecond {
		t.Errorf("nested = %#v", got["nested"])
	}
	if !reflect.DeepEqual(got["list"], []any{int64(640), 3}) {
		t.Errorf("list = %#v", got["list"])
	}
	if params["value"] != "{{ width }}" {
		t.Error("input modified")
	}
	if InterpolateParams(nil, s) != nil {
		t.Error("nil params")
	}
}

func TestExecutionStateTemplateGet(t *testing.T) {
	s := NewExecutionState(context.Background())
	s.Set("seq", uint32(3))
	if v, ok := s.Get("{{ seq }}"); !ok || v != uint32(3) {
		t.Errorf("Get template = %v, %v", v, ok)
	}
	if len(s.Outputs()) != 1 {
		t.Errorf("Outputs = %v", s.Outputs())
	}
}
