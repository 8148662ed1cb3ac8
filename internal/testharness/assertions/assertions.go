// Package assertions provides result-returning checks for scenario steps.
// Unlike testing helpers they never stop execution; the engine decides
// what a failed Result means.
package assertions

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Result is the outcome of an assertion.
type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
}

// Pass creates a passing result.
func Pass(message string) *Result {
	return &Result{Passed: true, Message: message}
}

// Fail creates a failing result.
func Fail(message string, expected, actual any) *Result {
	return &Result{Message: message, Expected: expected, Actual: actual}
}

// Err returns the result as an error, or nil if it passed.
func (r *Result) Err() error {
	if r == nil || r.Passed {
		return nil
	}
	if r.Expected == nil && r.Actual == nil {
		return errors.New(r.Message)
	}
	return fmt.Errorf("%s: expected %v, got %v", r.Message, r.Expected, r.Actual)
}

// All returns the first failing result, or a pass if every result passed.
func All(results ...*Result) *Result {
	for _, r := range results {
		if !r.Passed {
			return r
		}
	}
	return Pass(fmt.Sprintf("%d assertions passed", len(results)))
}

// Equal asserts deep equality. Numbers of different types compare by value.
func Equal(expected, actual any) *Result {
	if reflect.DeepEqual(expected, actual) {
		return Pass(fmt.Sprintf("values are equal: %v", expected))
	}
	ef, eok := toFloat64(expected)
	af, aok := toFloat64(actual)
	if eok && aok && ef == af {
		return Pass(fmt.Sprintf("values are equal: %v", expected))
	}
	return Fail("values are not equal", expected, actual)
}

// True asserts that value is true.
func True(value bool) *Result {
	if value {
		return Pass("value is true")
	}
	return Fail("expected true", true, false)
}

// Nil asserts that value is nil, including typed nil pointers.
func Nil(value any) *Result {
	if isNil(value) {
		return Pass("value is nil")
	}
	return Fail("expected nil", nil, value)
}

// NotNil asserts that value is not nil.
func NotNil(value any) *Result {
	if isNil(value) {
		return Fail("expected non-nil", "non-nil", nil)
	}
	return Pass("value is not nil")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// Contains asserts that a string, slice or map (by key) contains element.
func Contains(container, element any) *Result {
	cv := reflect.ValueOf(container)
	switch cv.Kind() {
	case reflect.String:
		e := fmt.Sprintf("%v", element)
		if strings.Contains(cv.String(), e) {
			return Pass(fmt.Sprintf("string contains %q", e))
		}
		return Fail(fmt.Sprintf("string does not contain %q", e), e, cv.String())
	case reflect.Slice, reflect.Array:
		for i := 0; i < cv.Len(); i++ {
			if Equal(element, cv.Index(i).Interface()).Passed {
				return Pass(fmt.Sprintf("slice contains %v", element))
			}
		}
		return Fail("slice does not contain element", element, container)
	case reflect.Map:
		ev := reflect.ValueOf(element)
		if ev.IsValid() && ev.Type().AssignableTo(cv.Type().Key()) && cv.MapIndex(ev).IsValid() {
			return Pass(fmt.Sprintf("map contains key %v", element))
		}
		return Fail("map does not contain key", element, "not found")
	default:
		return Fail("container must be string, slice, array, or map", "container", cv.Kind().String())
	}
}

// InRange asserts min <= value <= max.
func InRange(value, min, max any) *Result {
	vf, vok := toFloat64(value)
	minf, minok := toFloat64(min)
	maxf, maxok := toFloat64(max)
	if !vok || !minok || !maxok {
		return Fail("values must be numeric", "[min, max]", value)
	}
	if vf >= minf && vf <= maxf {
		return Pass(fmt.Sprintf("%v is in range [%v, %v]", value, min, max))
	}
	return Fail(fmt.Sprintf("%v is not in range [%v, %v]", value, min, max),
		fmt.Sprintf("[%v, %v]", min, max), value)
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// Within asserts that actual is within tolerance of expected.
func Within(actual, expected, tolerance time.Duration) *Result {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	if diff <= tolerance {
		return Pass(fmt.Sprintf("duration %v is within %v +/- %v", actual, expected, tolerance))
	}
	return Fail(fmt.Sprintf("duration %v is not within %v +/- %v (diff: %v)", actual, expected, tolerance, diff),
		fmt.Sprintf("%v +/- %v", expected, tolerance), actual)
}

// NoError asserts that err is nil.
func NoError(err error) *Result {
	if err == nil {
		return Pass("no error")
	}
	return Fail("expected no error", nil, err.Error())
}

// ErrorIs asserts that err wraps target.
func ErrorIs(err, target error) *Result {
	if errors.Is(err, target) {
		return Pass(fmt.Sprintf("error is %v", target))
	}
	return Fail("error mismatch", target, err)
}

// ErrorContains asserts that err's message contains substr.
func ErrorContains(err error, substr string) *Result {
	if err == nil {
		return Fail("expected an error", "error containing "+substr, nil)
	}
	if strings.Contains(err.Error(), substr) {
		return Pass(fmt.Sprintf("error contains %q", substr))
	}
	return Fail(fmt.Sprintf("error does not contain %q", substr), substr, err.Error())
}

// Len asserts the length of a collection.
func Len(collection any, expectedLen int) *Result {
	cv := reflect.ValueOf(collection)
	switch cv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
	default:
		return Fail("value must be a collection", "collection", cv.Kind().String())
	}
	if cv.Len() == expectedLen {
		return Pass(fmt.Sprintf("length is %d", expectedLen))
	}
	return Fail("length mismatch", expectedLen, cv.Len())
}
