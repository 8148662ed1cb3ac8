// Package engine executes loaded camera scenarios step by step.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/loader"
)

// TestResult is the outcome of a single test case.
type TestResult struct {
	TestCase    *loader.TestCase
	Passed      bool
	Error       error
	StepResults []*StepResult
	Duration    time.Duration
	StartTime   time.Time
	EndTime     time.Time

	// Skipped is set for cases marked skip or rejected by a case filter.
	Skipped    bool
	SkipReason string
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Step *loader.Step

	// StepIndex is 0-based.
	StepIndex int

	Passed        bool
	Error         error
	ExpectResults map[string]*ExpectResult
	Duration      time.Duration
	Output        map[string]any
}

// ExpectResult is the outcome of one expectation.
type ExpectResult struct {
	Key      string
	Expected any
	Actual   any
	Passed   bool
	Message  string
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	SuiteName string
	Results   []*TestResult
	PassCount int
	FailCount int
	SkipCount int
	Duration  time.Duration
}

// ActionHandler performs a step action and returns outputs for later
// steps and expectations.
type ActionHandler func(ctx context.Context, step *loader.Step, state *ExecutionState) (map[string]any, error)

// ExpectChecker checks one expectation against the state.
type ExpectChecker func(key string, expected any, state *ExecutionState) *ExpectResult

// ExecutionState carries outputs between the steps of one case.
type ExecutionState struct {
	mu      sync.RWMutex
	outputs map[string]any

	// Context is the case context.
	Context context.Context

	// Custom holds per-case objects owned by handlers (e.g. the test node).
	Custom map[string]any
}

// NewExecutionState creates an empty state.
func NewExecutionState(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		outputs: make(map[string]any),
		Custom:  make(map[string]any),
		Context: ctx,
	}
}

// Get returns an output. "{{ name }}" is accepted as a reference to name.
func (s *ExecutionState) Get(key string) (any, bool) {
	if m := variablePattern.FindStringSubmatch(key); m != nil && m[0] == key {
		key = m[1]
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[key]
	return v, ok
}

// Set stores an output.
func (s *ExecutionState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[key] = value
}

// Outputs returns a copy of all outputs.
func (s *ExecutionState) Outputs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// CaseHook runs around every case; runners use it to launch and tear down
// the camera and test node.
type CaseHook func(ctx context.Context, tc *loader.TestCase, state *ExecutionState) error

// EngineConfig configures the engine.
type EngineConfig struct {
	// DefaultTimeout bounds a case without its own timeout.
	DefaultTimeout time.Duration

	// StepTimeout bounds a step without its own timeout.
	StepTimeout time.Duration

	// SuiteTimeout bounds RunSuite; 0 derives it from the case timeouts.
	SuiteTimeout time.Duration

	StopOnFirstFailure bool

	// SetupCase runs before the first step; an error fails the case.
	SetupCase CaseHook

	// TeardownCase always runs after SetupCase succeeded.
	TeardownCase CaseHook

	// OnTestComplete is called after each case of a suite.
	OnTestComplete func(*TestResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout: 30 * time.Second,
		StepTimeout:    10 * time.Second,
	}
}
