// Package loader reads YAML camera test scenarios.
package loader

import "fmt"

// TestCase is one scenario.
type TestCase struct {
	// ID is the unique scenario identifier (e.g. "TC-STREAM-001").
	ID string `yaml:"id"`

	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Camera holds vimbax_camera_node parameters for the simulated camera
	// launched for this case. Ignored when the runner targets an external
	// camera.
	Camera map[string]any `yaml:"camera,omitempty"`

	// Steps are the actions to execute in order.
	Steps []Step `yaml:"steps"`

	// Timeout is the maximum duration for the case (e.g. "30s").
	Timeout string `yaml:"timeout,omitempty"`

	Tags []string `yaml:"tags,omitempty"`

	// Skip disables the case; SkipReason is reported instead.
	Skip       bool   `yaml:"skip,omitempty"`
	SkipReason string `yaml:"skip_reason,omitempty"`
}

// HasTag reports whether the case carries tag.
func (tc *TestCase) HasTag(tag string) bool {
	for _, t := range tc.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Step is a single action in a test case.
type Step struct {
	// Action names the handler (e.g. "wait_for_frame").
	Action string `yaml:"action"`

	Params map[string]any `yaml:"params,omitempty"`

	// Expect maps checker names (or output keys) to expected values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Timeout overrides the step timeout.
	Timeout string `yaml:"timeout,omitempty"`

	Description string `yaml:"description,omitempty"`
}

// TestSuite is a named collection of test cases.
type TestSuite struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Cases       []*TestCase `yaml:"cases"`
}

// LoadError describes a scenario that could not be loaded.
type LoadError struct {
	// File is the path that failed to load.
	File string

	// Line is the line number of the error, 0 if unknown.
	Line int

	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
	case e.File != "":
		return e.File + ": " + msg
	default:
		return msg
	}
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
