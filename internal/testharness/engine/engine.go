package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/loader"
)

// Engine executes test cases.
type Engine struct {
	config   *EngineConfig
	handlers map[string]ActionHandler
	checkers map[string]ExpectChecker
	mu       sync.RWMutex
}

// New creates an engine with the default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine with the built-in checkers registered.
func NewWithConfig(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		config:   config,
		handlers: make(map[string]ActionHandler),
		checkers: make(map[string]ExpectChecker),
	}
	e.RegisterChecker(CheckerNameDefault, defaultChecker)
	RegisterCheckers(e)
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *EngineConfig {
	return e.config
}

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RegisterChecker registers an expectation checker.
func (e *Engine) RegisterChecker(key string, checker ExpectChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[key] = checker
}

// Actions returns the registered action names.
func (e *Engine) Actions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	return names
}

// Run executes a single test case.
func (e *Engine) Run(ctx context.Context, tc *loader.TestCase) *TestResult {
	result := &TestResult{TestCase: tc, StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if tc.Skip {
		result.Skipped = true
		result.SkipReason = tc.SkipReason
		if result.SkipReason == "" {
			result.SkipReason = "skipped by test definition"
		}
		return result
	}

	timeout := e.config.DefaultTimeout
	if tc.Timeout != "" {
		if d, err := time.ParseDuration(tc.Timeout); err == nil {
			timeout = d
		}
	}
	caseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewExecutionState(caseCtx)

	if e.config.SetupCase != nil {
		if err := e.config.SetupCase(caseCtx, tc, state); err != nil {
			result.Error = fmt.Errorf("case setup failed: %w", err)
			return result
		}
	}
	if e.config.TeardownCase != nil {
		defer func() {
			// Teardown runs even when the case deadline has passed.
			if err := e.config.TeardownCase(context.WithoutCancel(caseCtx), tc, state); err != nil && result.Error == nil {
				result.Passed = false
				result.Error = fmt.Errorf("case teardown failed: %w", err)
			}
		}()
	}

	for i := range tc.Steps {
		stepResult := e.executeStep(caseCtx, &tc.Steps[i], i, state)
		result.StepResults = append(result.StepResults, stepResult)
		if !stepResult.Passed {
			result.Error = stepResult.Error
			return result
		}
	}
	result.Passed = true
	return result
}

func (e *Engine) executeStep(ctx context.Context, step *loader.Step, index int, state *ExecutionState) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}
	// Waiting steps get at least their own duration plus a margin.
	if d := stepDurationFromParams(step.Params); d > 0 && d+5*time.Second > timeout {
		timeout = d + 5*time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, ok := e.handlers[step.Action]
	e.mu.RUnlock()
	if !ok {
		result.Error = fmt.Errorf("unknown action: %s", step.Action)
		return result
	}

	interpolated := *step
	interpolated.Params = InterpolateParams(step.Params, state)
	outputs, err := handler(stepCtx, &interpolated, state)
	if err != nil {
		result.Error = fmt.Errorf("step %d (%s): %w", index+1, step.Action, err)
		return result
	}

	for k, v := range outputs {
		state.Set(k, v)
		result.Output[k] = v
	}
	snapshot := make(map[string]any, len(result.Output))
	for k, v := range result.Output {
		snapshot[k] = v
	}
	state.Set(InternalStepOutput, snapshot)

	result.Passed = true
	for key, expected := range InterpolateParams(step.Expect, state) {
		er := e.checkExpectation(key, expected, state)
		result.ExpectResults[key] = er
		if !er.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("step %d (%s): expectation failed: %s - %s", index+1, step.Action, key, er.Message)
		}
	}
	return result
}

func (e *Engine) checkExpectation(key string, expected any, state *ExecutionState) *ExpectResult {
	e.mu.RLock()
	checker, ok := e.checkers[key]
	if !ok {
		checker = e.checkers[CheckerNameDefault]
	}
	e.mu.RUnlock()
	return checker(key, expected, state)
}

// defaultChecker compares the output named key with expected. "present"
// accepts any value.
func defaultChecker(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(key)
	if !ok {
		return &ExpectResult{Key: key, Expected: expected, Message: fmt.Sprintf("key %q not found in outputs", key)}
	}
	if s, isStr := expected.(string); isStr && s == "present" {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
			Message: fmt.Sprintf("%s = %v", key, actual)}
	}

	passed := looselyEqual(expected, actual)
	r := &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: passed}
	if passed {
		r.Message = fmt.Sprintf("%s = %v", key, expected)
	} else {
		r.Message = fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	return r
}

// looselyEqual compares numbers numerically and everything else by its
// printed form, since YAML and handlers disagree on numeric types.
func looselyEqual(a, b any) bool {
	af, aok := ToFloat64(a)
	bf, bok := ToFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// RunSuite executes cases in order.
func (e *Engine) RunSuite(ctx context.Context, name string, cases []*loader.TestCase) *SuiteResult {
	result := &SuiteResult{SuiteName: name}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	suiteTimeout := e.config.SuiteTimeout
	if suiteTimeout == 0 {
		for _, tc := range cases {
			d := e.config.DefaultTimeout
			if tc.Timeout != "" {
				if parsed, err := time.ParseDuration(tc.Timeout); err == nil {
					d = parsed
				}
			}
			suiteTimeout += d
		}
		suiteTimeout += time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, suiteTimeout)
	defer cancel()

	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		tr := e.Run(ctx, tc)
		result.Results = append(result.Results, tr)
		switch {
		case tr.Skipped:
			result.SkipCount++
		case tr.Passed:
			result.PassCount++
		default:
			result.FailCount++
		}
		if e.config.OnTestComplete != nil {
			e.config.OnTestComplete(tr)
		}
		if !tr.Passed && !tr.Skipped && e.config.StopOnFirstFailure {
			break
		}
	}
	return result
}

// stepDurationFromParams returns the longer of duration_ms and
// timeout_ms, so a wait step is never cut short by the step timeout.
func stepDurationFromParams(params map[string]any) time.Duration {
	var d time.Duration
	for _, key := range []string{"duration_ms", "timeout_ms"} {
		if v, ok := ToFloat64(params[key]); ok {
			if md := time.Duration(v * float64(time.Millisecond)); md > d {
				d = md
			}
		}
	}
	return d
}
