package engine

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ToFloat64 converts numeric values to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func missing(key string, expected any, output string) *ExpectResult {
	return &ExpectResult{
		Key:      key,
		Expected: expected,
		Message:  fmt.Sprintf("output key %q not found", output),
	}
}

// compareValue applies cmp to the numeric "value" output and expected.
func compareValue(key string, expected any, state *ExecutionState, op string, cmp func(a, b float64) bool) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, expected, KeyValue)
	}
	a, ok1 := ToFloat64(actual)
	b, ok2 := ToFloat64(expected)
	if !ok1 || !ok2 {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("cannot compare non-numeric values: %T and %T", actual, expected)}
	}
	passed := cmp(a, b)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("%v %s %v = %v", a, op, b, passed)}
}

// CheckerValueGT checks value > expected.
func CheckerValueGT(key string, expected any, state *ExecutionState) *ExpectResult {
	return compareValue(key, expected, state, ">", func(a, b float64) bool { return a > b })
}

// CheckerValueLT checks value < expected.
func CheckerValueLT(key string, expected any, state *ExecutionState) *ExpectResult {
	return compareValue(key, expected, state, "<", func(a, b float64) bool { return a < b })
}

// CheckerValueInRange checks min <= value <= max. Expected is a map with
// "min" and "max".
func CheckerValueInRange(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, expected, KeyValue)
	}
	bounds, ok := expected.(map[string]any)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("expected {min, max}, got %T", expected)}
	}
	lo, okLo := ToFloat64(bounds["min"])
	hi, okHi := ToFloat64(bounds["max"])
	v, okV := ToFloat64(actual)
	if !okLo || !okHi || !okV {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: "min, max and value must be numeric"}
	}
	passed := v >= lo && v <= hi
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("%v in [%v, %v] = %v", v, lo, hi, passed)}
}

// CheckerValueIsNotNull checks that "value" is present and non-nil.
// Expected false inverts the check.
func CheckerValueIsNotNull(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	notNull := ok && actual != nil
	want := expected != false
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: notNull == want,
		Message: fmt.Sprintf("value not null = %v", notNull)}
}

// CheckerContains checks that the "value" list or string contains
// expected.
func CheckerContains(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, expected, KeyValue)
	}
	if s, isStr := actual.(string); isStr {
		passed := strings.Contains(s, fmt.Sprintf("%v", expected))
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
			Message: fmt.Sprintf("%q contains %v = %v", s, expected, passed)}
	}

	rv := reflect.ValueOf(actual)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("cannot search %T", actual)}
	}
	for i := 0; i < rv.Len(); i++ {
		if looselyEqual(expected, rv.Index(i).Interface()) {
			return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
				Message: fmt.Sprintf("found %v at index %d", expected, i)}
		}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: actual,
		Message: fmt.Sprintf("%v not found", expected)}
}

// CheckerErrorContains checks that the "error" output contains expected.
func CheckerErrorContains(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyError)
	if !ok || actual == nil || actual == "" {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Message: "no error recorded"}
	}
	msg := fmt.Sprintf("%v", actual)
	want := fmt.Sprintf("%v", expected)
	passed := strings.Contains(msg, want)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("error contains %q: %v", want, passed)}
}

// CheckerNoError checks that the "error" output is absent or empty.
func CheckerNoError(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyError)
	if !ok || actual == nil || actual == "" {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true, Message: "no error present"}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: actual,
		Message: fmt.Sprintf("error present: %v", actual)}
}

// CheckerDurationUnder checks that the "duration" output is below
// expected ("250ms", or a number of milliseconds).
func CheckerDurationUnder(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyDuration)
	if !ok {
		return missing(key, expected, KeyDuration)
	}
	limit, err := parseDuration(expected)
	if err != nil {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Message: err.Error()}
	}
	d, err := parseDuration(actual)
	if err != nil {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("cannot parse %v as duration", actual)}
	}
	passed := d < limit
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed,
		Message: fmt.Sprintf("%v < %v = %v", d, limit, passed)}
}

// CheckerSaveAs stores the step's complete output under the name given.
func CheckerSaveAs(key string, expected any, state *ExecutionState) *ExpectResult {
	target, ok := expected.(string)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected,
			Message: fmt.Sprintf("save_as target must be a string, got %T", expected)}
	}
	output, ok := state.Get(InternalStepOutput)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected, Message: "no step output to save"}
	}
	state.Set(target, output)
	return &ExpectResult{Key: key, Expected: expected, Actual: output, Passed: true,
		Message: fmt.Sprintf("saved step output as %q", target)}
}

// CheckerValueEquals compares the step output with one saved by save_as.
// Every key of the saved output must match.
func CheckerValueEquals(key string, expected any, state *ExecutionState) *ExpectResult {
	name, ok := expected.(string)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected,
			Message: fmt.Sprintf("value_equals target must be a string, got %T", expected)}
	}
	saved, ok := state.Get(name)
	if !ok {
		return &ExpectResult{Key: key, Expected: name, Message: fmt.Sprintf("saved value %q not found", name)}
	}
	current, _ := state.Get(InternalStepOutput)

	savedMap, ok1 := saved.(map[string]any)
	currentMap, ok2 := current.(map[string]any)
	if !ok1 || !ok2 {
		passed := looselyEqual(saved, current)
		return &ExpectResult{Key: key, Expected: saved, Actual: current, Passed: passed,
			Message: fmt.Sprintf("saved=%v current=%v", saved, current)}
	}

	var mismatches []string
	for k, sv := range savedMap {
		if cv, has := currentMap[k]; !has || !looselyEqual(sv, cv) {
			mismatches = append(mismatches, fmt.Sprintf("%s: saved=%v current=%v", k, sv, cv))
		}
	}
	if len(mismatches) > 0 {
		return &ExpectResult{Key: key, Expected: saved, Actual: current,
			Message: "mismatches: " + strings.Join(mismatches, "; ")}
	}
	return &ExpectResult{Key: key, Expected: saved, Actual: current, Passed: true, Message: "values match"}
}

// CheckerFramesInOrder checks that the "stamps" output (or "seqs" when
// no stamps were recorded) is strictly increasing. Expected false inverts
// the check.
func CheckerFramesInOrder(key string, expected any, state *ExecutionState) *ExpectResult {
	want := expected != false
	if raw, ok := state.Get(KeyStamps); ok {
		stamps, isTimes := raw.([]time.Time)
		if !isTimes {
			return &ExpectResult{Key: key, Expected: expected, Actual: raw,
				Message: fmt.Sprintf("stamps output has type %T", raw)}
		}
		for i := 1; i < len(stamps); i++ {
			if !stamps[i].After(stamps[i-1]) {
				return &ExpectResult{Key: key, Expected: expected, Actual: raw, Passed: !want,
					Message: fmt.Sprintf("frame %d stamp %v not after %v", i+1, stamps[i], stamps[i-1])}
			}
		}
		return &ExpectResult{Key: key, Expected: expected, Actual: raw, Passed: want,
			Message: fmt.Sprintf("%d frames in stamp order", len(stamps))}
	}

	raw, ok := state.Get(KeySeqs)
	if !ok {
		return missing(key, expected, KeyStamps)
	}
	seqs, isSeqs := raw.([]uint32)
	if !isSeqs {
		return &ExpectResult{Key: key, Expected: expected, Actual: raw,
			Message: fmt.Sprintf("seqs output has type %T", raw)}
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			return &ExpectResult{Key: key, Expected: expected, Actual: raw, Passed: !want,
				Message: fmt.Sprintf("frame %d seq %d not after %d", i+1, seqs[i], seqs[i-1])}
		}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: raw, Passed: want,
		Message: fmt.Sprintf("%d frames in sequence order", len(seqs))}
}

// parseDuration accepts a time.Duration, a duration string, or a number of
// milliseconds.
func parseDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		return time.ParseDuration(val)
	default:
		if ms, ok := ToFloat64(v); ok {
			return time.Duration(ms * float64(time.Millisecond)), nil
		}
		return 0, fmt.Errorf("unsupported duration type %T", v)
	}
}

// RegisterCheckers registers the built-in checkers.
func RegisterCheckers(e *Engine) {
	e.RegisterChecker(CheckerNameValueGT, CheckerValueGT)
	e.RegisterChecker(CheckerNameValueLT, CheckerValueLT)
	e.RegisterChecker(CheckerNameValueInRange, CheckerValueInRange)
	e.RegisterChecker(CheckerNameValueNotNull, CheckerValueIsNotNull)
	e.RegisterChecker(CheckerNameContains, CheckerContains)
	e.RegisterChecker(CheckerNameErrorContains, CheckerErrorContains)
	e.RegisterChecker(CheckerNameNoError, CheckerNoError)
	e.RegisterChecker(CheckerNameDurationUnder, CheckerDurationUnder)
	e.RegisterChecker(CheckerNameSaveAs, CheckerSaveAs)
	e.RegisterChecker(CheckerNameValueEquals, CheckerValueEquals)
	e.RegisterChecker(CheckerNameFramesInOrder, CheckerFramesInOrder)
}
