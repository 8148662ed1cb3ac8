package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// variablePattern matches {{ name }} templates.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Interpolate replaces {{ name }} placeholders with outputs from state.
// Unknown names are left in place.
func Interpolate(template string, state *ExecutionState) string {
	if state == nil {
		return template
	}
	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		value, ok := state.Get(name)
		if !ok {
			return match
		}
		return valueToString(value)
	})
}

// InterpolateParams returns a copy of params with every string
// interpolated, recursing into maps and lists. A string that is exactly
// one reference keeps the referenced value's type.
func InterpolateParams(params map[string]any, state *ExecutionState) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, state)
	}
	return out
}

func interpolateValue(value any, state *ExecutionState) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, state)
	case map[string]any:
		return InterpolateParams(v, state)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateValue(item, state)
		}
		return out
	default:
		return value
	}
}

func interpolateString(s string, state *ExecutionState) any {
	if state == nil {
		return s
	}
	trimmed := strings.TrimSpace(s)
	if m := variablePattern.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		if value, ok := state.Get(m[1]); ok {
			return value
		}
		return s
	}
	return Interpolate(s, state)
}

func valueToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
