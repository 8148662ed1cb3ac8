// Command camsim hosts a broker with simulated cameras.
//
// The cameras come from a launch file; without one a single default
// camera is started. Test runners attach with -target or find the broker
// via mDNS.
//
// Usage:
//
//	camsim [flags] [name:=value ...]
//
// Flags:
//
//	-port int             Listen port (default 7447)
//	-launch string        Launch file describing the camera nodes
//	-name string          Camera name when no launch file is given (default "vimbax_camera")
//	-advertise            Advertise the broker via mDNS (default true)
//	-tls                  Serve TLS with a self-signed certificate
//	-interactive          Start the command console
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# One camera, streaming at 30 Hz
//	camsim
//
//	# Cameras from a launch file with an argument override
//	camsim -launch cameras.launch.yaml camera_name:=cam1
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camharness/camharness-go/cmd/camsim/console"
	"github.com/camharness/camharness-go/pkg/broker"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/discovery"
	"github.com/camharness/camharness-go/pkg/launch"
	camlog "github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/transport"
)

var (
	port        = flag.Int("port", transport.DefaultPort, "Listen port")
	launchFile  = flag.String("launch", "", "Launch file describing the camera nodes")
	cameraName  = flag.String("name", "vimbax_camera", "Camera name when no launch file is given")
	advertise   = flag.Bool("advertise", true, "Advertise the broker via mDNS")
	useTLS      = flag.Bool("tls", false, "Serve TLS with a self-signed certificate")
	interactive = flag.Bool("interactive", false, "Start the command console")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	desc, err := loadDescription()
	if err != nil {
		log.Fatalf("Invalid launch description: %v", err)
	}

	var con *console.Console
	out := os.Stderr
	if *interactive {
		con, err = console.New()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
	}
	logger := newLogger(*logLevel, out, con)

	config := broker.DefaultConfig()
	config.Address = fmt.Sprintf(":%d", *port)
	config.Logger = logger
	if *protocolLog != "" {
		fl, err := camlog.NewFileLogger(*protocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer fl.Close()
		config.ProtocolLogger = fl
	}
	if *useTLS {
		cert, err := transport.GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to create certificate: %v", err)
		}
		if config.TLS, err = transport.NewServerTLSConfig(cert); err != nil {
			log.Fatalf("Failed to configure TLS: %v", err)
		}
	}
	if *advertise {
		config.Advertiser = discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.New(config)
	if err := b.Start(ctx); err != nil {
		log.Fatalf("Failed to start broker: %v", err)
	}
	defer func() {
		if err := b.Stop(); err != nil {
			log.Printf("Error stopping broker: %v", err)
		}
	}()

	bctx, err := bus.Init(ctx, bus.WithGraph(b.Graph()), bus.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create bus context: %v", err)
	}
	defer bctx.Shutdown()

	session, err := launch.NewLauncher(logger).Launch(ctx, bctx, desc)
	if err != nil {
		log.Fatalf("Failed to launch nodes: %v", err)
	}
	defer func() {
		if err := session.Shutdown(); err != nil {
			log.Printf("Error stopping nodes: %v", err)
		}
	}()

	log.Printf("Broker %s listening on %s", b.InstanceID(), b.Addr())
	for _, p := range session.Nodes() {
		log.Printf("  node %s", p.Name())
	}

	if con != nil {
		con.Attach(b, session)
		go con.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	log.Println("Shutting down...")
}

// loadDescription reads -launch, or describes a single default camera.
func loadDescription() (*launch.Description, error) {
	overrides, err := launch.ParseOverrides(flag.Args())
	if err != nil {
		return nil, err
	}
	if *launchFile == "" {
		if len(overrides) > 0 {
			return nil, fmt.Errorf("argument overrides need -launch")
		}
		return &launch.Description{Nodes: []launch.NodeSpec{{
			Package:    "vimbax_camera",
			Executable: "vimbax_camera_node",
			Name:       *cameraName,
		}}}, nil
	}
	desc, err := launch.Load(*launchFile)
	if err != nil {
		return nil, err
	}
	return desc.Resolve(overrides)
}

func newLogger(level string, out *os.File, con *console.Console) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if con != nil {
		log.SetOutput(con.Stderr())
		return slog.New(slog.NewTextHandler(con.Stderr(), opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
