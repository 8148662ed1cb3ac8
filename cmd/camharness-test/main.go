// Command camharness-test runs camera scenarios.
//
// Without -target every case launches a simulated camera and a test node
// in-process. With -target (or -discover) the nodes attach to a broker,
// and -camera selects a camera that is already running there.
//
// Usage:
//
//	camharness-test [flags] [test-pattern]
//
// Flags:
//
//	-tests string           Scenario file or directory (default "./testdata/scenarios")
//	-target string          Broker address (host:port)
//	-discover               Find the broker via mDNS when -target is empty
//	-camera string          Existing camera node to test instead of launching one
//	-tags string            Only run cases with one of these tags (comma-separated)
//	-tls                    Connect to the broker over TLS
//	-timeout duration       Case timeout (default 30s)
//	-grace duration         Unsubscribe grace interval (default 100ms)
//	-queue int              Frame queue limit, 0 for unbounded
//	-id string              Fixed harness identifier instead of a random one
//	-stop-on-failure        Stop after the first failing case
//	-verbose                Enable verbose output
//	-json                   Output results as JSON
//	-junit                  Output results as JUnit XML
//	-protocol-log string    File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# Run all scenarios in-process
//	camharness-test -tests ./scenarios
//
//	# Test a camera behind a broker found on the local network
//	camharness-test -discover -camera vimbax_camera "TC-STREAM-*"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/camharness/camharness-go/internal/testharness/reporter"
	"github.com/camharness/camharness-go/internal/testharness/runner"
	"github.com/camharness/camharness-go/pkg/harness"
	camlog "github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/transport"
)

var (
	tests         = flag.String("tests", "./testdata/scenarios", "Scenario file or directory")
	target        = flag.String("target", "", "Broker address (host:port)")
	discover      = flag.Bool("discover", false, "Find the broker via mDNS when -target is empty")
	cameraName    = flag.String("camera", "", "Existing camera node to test instead of launching one")
	tags          = flag.String("tags", "", "Only run cases with one of these tags (comma-separated)")
	useTLS        = flag.Bool("tls", false, "Connect to the broker over TLS")
	timeout       = flag.Duration("timeout", 30*time.Second, "Case timeout")
	grace         = flag.Duration("grace", harness.DefaultGraceInterval, "Unsubscribe grace interval")
	queueLimit    = flag.Int("queue", 0, "Frame queue limit, 0 for unbounded")
	fixedID       = flag.String("id", "", "Fixed harness identifier instead of a random one")
	stopOnFailure = flag.Bool("stop-on-failure", false, "Stop after the first failing case")
	verbose       = flag.Bool("verbose", false, "Enable verbose output")
	jsonOut       = flag.Bool("json", false, "Output results as JSON")
	junitOut      = flag.Bool("junit", false, "Output results as JUnit XML")
	protocolLog   = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()

	pattern := ""
	if flag.NArg() > 0 {
		pattern = flag.Arg(0)
	}

	if *cameraName != "" && *target == "" && !*discover {
		fmt.Fprintln(os.Stderr, "Error: -camera needs a broker (-target or -discover)")
		flag.Usage()
		os.Exit(1)
	}

	outputFormat := reporter.FormatText
	if *jsonOut {
		outputFormat = reporter.FormatJSON
	} else if *junitOut {
		outputFormat = reporter.FormatJUnit
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if outputFormat == reporter.FormatText {
		log.SetFlags(log.Ltime)
		if *verbose {
			log.SetFlags(log.Ltime | log.Lmicroseconds)
		}
		printBanner()
		switch {
		case *target != "":
			log.Printf("Broker: %s", *target)
		case *discover:
			log.Printf("Broker: discovering via mDNS")
		default:
			log.Printf("Broker: in-process")
		}
		if *cameraName != "" {
			log.Printf("Camera: %s", *cameraName)
		}
		if pattern != "" {
			log.Printf("Pattern: %s", pattern)
		}
		log.Println()
	}

	var protocolLogger *camlog.FileLogger
	if *protocolLog != "" {
		var err error
		protocolLogger, err = camlog.NewFileLogger(*protocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create protocol logger: %v\n", err)
			os.Exit(1)
		}
		if outputFormat == reporter.FormatText {
			log.Printf("Protocol logging to: %s", *protocolLog)
		}
	}

	config := runner.DefaultConfig()
	config.TestDir = *tests
	config.Pattern = pattern
	config.Tags = *tags
	config.Target = *target
	config.Discover = *discover
	config.CameraName = *cameraName
	config.Timeout = *timeout
	config.GraceInterval = *grace
	config.QueueMaxLen = *queueLimit
	config.StopOnFirstFailure = *stopOnFailure
	config.Verbose = *verbose
	config.OutputFormat = outputFormat
	config.Logger = logger
	if *fixedID != "" {
		config.IDGenerator = harness.FixedIdentifier(harness.Identifier(*fixedID))
	}
	if *useTLS {
		config.TLS = transport.NewClientTLSConfig(nil, "")
	}
	// Only set the logger when non-nil to avoid a typed-nil interface.
	if protocolLogger != nil {
		config.ProtocolLogger = protocolLogger
	}

	r, err := runner.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = r.Close()
		if protocolLogger != nil {
			_ = protocolLogger.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := r.Run(ctx)
	if err != nil {
		if outputFormat == reporter.FormatText {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			log.Printf("Error: %v", err)
		}
		os.Exit(1)
	}
	if result.FailCount > 0 {
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Print(`
  ___ __ _ _ __ ___ | |__   __ _ _ __ _ __   ___  ___ ___
 / __/ _' | '_ ' _ \| '_ \ / _' | '__| '_ \ / _ \/ __/ __|
| (_| (_| | | | | | | | | | (_| | |  | | | |  __/\__ \__ \
 \___\__,_|_| |_| |_|_| |_|\__,_|_|  |_| |_|\___||___/___/

Camera Scenario Runner
`)
}
