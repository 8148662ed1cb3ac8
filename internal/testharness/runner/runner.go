// Package runner executes camera scenarios: for every case it brings up a
// camera node and a test node on a fresh bus, runs the steps and tears
// both down again.
package runner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/engine"
	"github.com/camharness/camharness-go/internal/testharness/loader"
	"github.com/camharness/camharness-go/internal/testharness/reporter"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/discovery"
	"github.com/camharness/camharness-go/pkg/harness"
	"github.com/camharness/camharness-go/pkg/log"
)

// Config configures the runner.
type Config struct {
	// TestDir is a scenario file or directory (searched recursively).
	TestDir string

	// Pattern filters cases by ID (comma-separated globs).
	Pattern string

	// Tags includes only cases with at least one of these tags (comma-separated).
	Tags string

	// Target is a broker address. Empty runs everything in-process.
	Target string

	// TLS secures the broker connection when non-nil.
	TLS *tls.Config

	// Discover looks the broker up via mDNS when Target is empty.
	Discover bool

	// DiscoverTimeout bounds the mDNS lookup.
	DiscoverTimeout time.Duration

	// Browser overrides the mDNS browser used by Discover.
	Browser discovery.Browser

	// ConnectAttempts bounds broker connection retries per case.
	ConnectAttempts int

	// CameraName targets an existing camera behind Target instead of
	// launching one per case.
	CameraName string

	// Camera is the base configuration for launched cameras; a case's
	// camera: block is applied on top.
	Camera camera.Config

	// Timeout is the default case timeout.
	Timeout time.Duration

	// SuiteTimeout bounds the whole run (0 derives it from the cases).
	SuiteTimeout time.Duration

	StopOnFirstFailure bool

	// GraceInterval and QueueMaxLen configure the test node.
	GraceInterval time.Duration
	QueueMaxLen   int

	// IDGenerator yields the harness identifier of each case.
	IDGenerator harness.IDGenerator

	Verbose bool

	// Output receives the report.
	Output io.Writer

	// OutputFormat is "text", "json" or "junit".
	OutputFormat string

	Logger *slog.Logger

	// ProtocolLogger captures bus traffic. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		TestDir:         "testdata",
		DiscoverTimeout: discovery.BrowseTimeout,
		ConnectAttempts: 5,
		Camera:          camera.DefaultConfig(),
		Timeout:         30 * time.Second,
		GraceInterval:   harness.DefaultGraceInterval,
		IDGenerator:     harness.GenerateIdentifier,
		Output:          os.Stdout,
		OutputFormat:    reporter.FormatText,
	}
}

// Runner executes scenarios.
type Runner struct {
	config   *Config
	engine   *engine.Engine
	reporter reporter.Reporter
	logger   *slog.Logger
	target   string
}

// New creates a runner.
func New(config *Config) (*Runner, error) {
	defaults := DefaultConfig()
	if config.IDGenerator == nil {
		config.IDGenerator = defaults.IDGenerator
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ConnectAttempts <= 0 {
		config.ConnectAttempts = defaults.ConnectAttempts
	}
	if config.DiscoverTimeout <= 0 {
		config.DiscoverTimeout = defaults.DiscoverTimeout
	}
	if config.Output == nil {
		config.Output = defaults.Output
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	rep, err := reporter.New(config.OutputFormat, config.Output, config.Verbose)
	if err != nil {
		return nil, err
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.DefaultTimeout = config.Timeout
	engineConfig.SuiteTimeout = config.SuiteTimeout
	engineConfig.StopOnFirstFailure = config.StopOnFirstFailure

	r := &Runner{
		config:   config,
		engine:   engine.NewWithConfig(engineConfig),
		reporter: rep,
		logger:   config.Logger,
		target:   config.Target,
	}
	engineConfig.SetupCase = r.setupCase
	engineConfig.TeardownCase = r.teardownCase

	r.registerHandlers()
	r.registerCheckers()
	return r, nil
}

// Engine returns the underlying engine, e.g. to register extra actions.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Target returns the broker address in use, or "" when in-process.
func (r *Runner) Target() string {
	return r.target
}

// Run loads, filters and executes the configured scenarios and reports
// the result.
func (r *Runner) Run(ctx context.Context) (*engine.SuiteResult, error) {
	cases, err := loader.Load(r.config.TestDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tests: %w", err)
	}
	if r.config.Pattern != "" {
		cases = loader.FilterByPattern(cases, r.config.Pattern)
	}
	if r.config.Tags != "" {
		cases = loader.FilterByTags(cases, parseTags(r.config.Tags))
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases found matching filters (pattern=%q, tags=%q)",
			r.config.Pattern, r.config.Tags)
	}
	loader.SortByID(cases)

	result, err := r.RunCases(ctx, cases)
	if err != nil {
		return nil, err
	}
	r.reporter.ReportSuite(result)
	return result, nil
}

// RunCases executes cases without loading or reporting.
func (r *Runner) RunCases(ctx context.Context, cases []*loader.TestCase) (*engine.SuiteResult, error) {
	if err := r.resolveTarget(ctx); err != nil {
		return nil, err
	}
	where := "in-process"
	if r.target != "" {
		where = r.target
	}
	return r.engine.RunSuite(ctx, fmt.Sprintf("Camera scenarios (%s)", where), cases), nil
}

// Close releases runner resources.
func (r *Runner) Close() error {
	if r.config.Browser != nil {
		r.config.Browser.Stop()
	}
	return nil
}

func parseTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r *Runner) busOptions() []bus.Option {
	opts := []bus.Option{bus.WithLogger(r.logger)}
	if r.config.ProtocolLogger != nil {
		opts = append(opts, bus.WithProtocolLogger(r.config.ProtocolLogger))
	}
	if r.target != "" {
		opts = append(opts, bus.WithBroker(r.target, bus.RemoteConfig{
			TLS:            r.config.TLS,
			Logger:         r.logger,
			ProtocolLogger: r.config.ProtocolLogger,
		}))
	}
	return opts
}
