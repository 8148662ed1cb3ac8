// Package console is the interactive command line of camsim.
package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/camharness/camharness-go/pkg/broker"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/launch"
)

// Console reads commands from the terminal and applies them to the
// running cameras.
type Console struct {
	rl      *readline.Instance
	out     io.Writer
	broker  *broker.Broker
	session *launch.Session
}

// New creates a console on the terminal.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "camsim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("status"),
			readline.PcItem("cameras"),
			readline.PcItem("features"),
			readline.PcItem("get"),
			readline.PcItem("set"),
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// newWithWriter creates a console without a terminal.
func newWithWriter(out io.Writer) *Console {
	return &Console{out: out}
}

// Attach connects the console to the broker and launched nodes.
func (c *Console) Attach(b *broker.Broker, s *launch.Session) {
	c.broker = b
	c.session = s
}

// Stdout returns a writer that does not disturb the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that does not disturb the prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether it was quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "cameras", "c":
		c.cmdCameras()
	case "features", "f":
		err = c.cmdFeatures(args)
	case "get", "g":
		err = c.cmdGet(args)
	case "set":
		err = c.cmdSet(args)
	case "start":
		err = c.withCamera(args, (*camera.Camera).StartStream)
	case "stop":
		err = c.withCamera(args, (*camera.Camera).StopStream)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
camsim commands:
  status                      - Broker address, peers and frame counters
  cameras                     - List running cameras
  features <camera>           - List a camera's features and values
  get <camera> <feature>      - Read a feature
  set <camera> <feature> <v>  - Write a feature
  start <camera>              - Start streaming
  stop <camera>               - Stop streaming
  quit                        - Stop the simulator`)
}

func (c *Console) cameras() []*camera.Camera {
	if c.session == nil {
		return nil
	}
	var out []*camera.Camera
	for _, p := range c.session.Nodes() {
		if cam, ok := p.(*camera.Camera); ok {
			out = append(out, cam)
		}
	}
	return out
}

func (c *Console) camera(name string) (*camera.Camera, error) {
	for _, cam := range c.cameras() {
		if cam.Name() == name {
			return cam, nil
		}
	}
	return nil, fmt.Errorf("no camera %q", name)
}

func (c *Console) withCamera(args []string, fn func(*camera.Camera) error) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: start|stop <camera>")
	}
	cam, err := c.camera(args[0])
	if err != nil {
		return err
	}
	if err := fn(cam); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s streaming: %v\n", cam.Name(), cam.Streaming())
	return nil
}

func (c *Console) cmdStatus() {
	if c.broker != nil {
		fmt.Fprintf(c.out, "Broker %s on %s, %d peer(s)\n", c.broker.InstanceID(), c.broker.Addr(), c.broker.PeerCount())
	}
	for _, cam := range c.cameras() {
		fmt.Fprintf(c.out, "  %-28s streaming=%-5v published=%d\n", cam.Name(), cam.Streaming(), cam.Published())
	}
}

func (c *Console) cmdCameras() {
	cams := c.cameras()
	if len(cams) == 0 {
		fmt.Fprintln(c.out, "No cameras running")
		return
	}
	for _, cam := range cams {
		fmt.Fprintf(c.out, "  %s  topic=%s\n", cam.Name(), cam.ImageTopic())
	}
}

func (c *Console) cmdFeatures(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: features <camera>")
	}
	cam, err := c.camera(args[0])
	if err != nil {
		return err
	}
	snapshot := cam.Features().Snapshot()
	names := cam.Features().Names()
	sort.Strings(names)
	for _, name := range names {
		info, err := cam.Features().Info(name)
		if err != nil {
			continue
		}
		value, ok := snapshot[name]
		if !ok {
			value = "-"
		}
		fmt.Fprintf(c.out, "  %-24s %-12s %v %s\n", name, info.Type, value, info.Unit)
	}
	return nil
}

func (c *Console) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <camera> <feature>")
	}
	cam, err := c.camera(args[0])
	if err != nil {
		return err
	}
	value, err := readFeature(cam.Features(), args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s = %v\n", args[1], value)
	return nil
}

func (c *Console) cmdSet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: set <camera> <feature> <value>")
	}
	cam, err := c.camera(args[0])
	if err != nil {
		return err
	}
	if err := writeFeature(cam.Features(), args[1], args[2]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s := %s\n", args[1], args[2])
	return nil
}

func readFeature(s *camera.FeatureStore, name string) (any, error) {
	info, err := s.Info(name)
	if err != nil {
		return nil, err
	}
	switch info.Type {
	case camera.FeatureInt:
		return s.Int(name)
	case camera.FeatureFloat:
		return s.Float(name)
	case camera.FeatureString:
		return s.StringValue(name)
	case camera.FeatureBool:
		return s.Bool(name)
	case camera.FeatureEnum:
		return s.Enum(name)
	default:
		return nil, fmt.Errorf("%s is a %s", name, info.Type)
	}
}

func writeFeature(s *camera.FeatureStore, name, raw string) error {
	info, err := s.Info(name)
	if err != nil {
		return err
	}
	switch info.Type {
	case camera.FeatureInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		return s.SetInt(name, v)
	case camera.FeatureFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		return s.SetFloat(name, v)
	case camera.FeatureString:
		return s.SetString(name, raw)
	case camera.FeatureBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		return s.SetBool(name, v)
	case camera.FeatureEnum:
		return s.SetEnum(name, raw)
	case camera.FeatureCommand:
		return s.Run(name)
	default:
		return fmt.Errorf("%s is a %s", name, info.Type)
	}
}
