package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/wire"
)

// Stream errors.
var (
	ErrAlreadyStreaming = errors.New("stream already running")
	ErrNotStreaming     = errors.New("stream not running")
	ErrClosed           = errors.New("camera closed")
	ErrInvalidFrameRate = errors.New("invalid acquisition frame rate")
	ErrInvalidBuffers   = errors.New("buffer count must not be negative")
)

// Camera is a simulated camera driver node. It publishes test-pattern
// frames on image_raw and exposes the driver's feature services.
type Camera struct {
	config   Config
	node     *bus.Node
	exec     *bus.Executor
	features *FeatureStore
	settings SettingsStore
	logger   *slog.Logger
	openedAt time.Time

	imagePub *bus.Publisher
	infoPub  *bus.Publisher

	infoMu sync.RWMutex
	info   *CameraInfo

	streamMu     sync.Mutex
	streaming    atomic.Bool
	streamCancel context.CancelFunc
	streamDone   chan struct{}
	bufferCount  int
	seq          atomic.Uint32
	published    atomic.Uint64
	dropped      atomic.Uint64

	closed  atomic.Bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New starts a camera node on bctx.
func New(bctx *bus.Context, config Config) (*Camera, error) {
	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Namespace == "" {
		config.Namespace = config.Name
	}
	if config.CameraFrameID == "" {
		config.CameraFrameID = defaults.CameraFrameID
	}
	if config.Width <= 0 {
		config.Width = defaults.Width
	}
	if config.Height <= 0 {
		config.Height = defaults.Height
	}
	if config.PixelFormat == "" {
		config.PixelFormat = defaults.PixelFormat
	}
	if config.FrameRate <= 0 {
		config.FrameRate = defaults.FrameRate
	}
	if config.BufferCount <= 0 {
		config.BufferCount = defaults.BufferCount
	}
	if _, ok := frame.EncodingForPixelFormat(config.PixelFormat); !ok {
		return nil, fmt.Errorf("camera: unsupported pixel format %q", config.PixelFormat)
	}

	node, err := bctx.NewNode(config.Name, bus.WithNamespace(config.Namespace), bus.WithRemaps(config.Remaps))
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	c := &Camera{
		config:   config,
		node:     node,
		exec:     bus.NewExecutor(bctx.Logger()),
		logger:   bctx.Logger().With("camera", node.FullyQualifiedName()),
		openedAt: time.Now(),
		stopped:  make(chan struct{}),
	}
	c.features = NewFeatureStore(c.streaming.Load)
	c.registerFeatures()

	if err := c.setup(); err != nil {
		node.Destroy()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := c.exec.Add(node); err != nil {
		cancel()
		node.Destroy()
		return nil, err
	}
	go func() {
		defer close(c.stopped)
		_ = c.exec.Spin(ctx)
	}()

	if config.Autostream != 0 {
		if err := c.StartStream(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	c.logger.Info("camera node started", "serial", c.serial(), "autostream", config.Autostream != 0)
	return c, nil
}

func (c *Camera) setup() error {
	if c.config.SettingsFile != "" {
		if err := c.LoadSettings(c.config.SettingsFile); err != nil {
			return fmt.Errorf("camera: %w", err)
		}
	}

	info := DefaultCameraInfo(int(c.config.Width), int(c.config.Height))
	if c.config.CameraInfoURL != "" {
		loaded, err := LoadCameraInfo(c.config.CameraInfoURL)
		if err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		info = loaded
	}
	info.FrameID = c.config.CameraFrameID
	c.info = info

	var err error
	if c.imagePub, err = c.node.CreatePublisher(TopicImageRaw); err != nil {
		return err
	}
	if c.infoPub, err = c.node.CreatePublisher(TopicCameraInfo); err != nil {
		return err
	}
	return c.registerServices()
}

func (c *Camera) registerFeatures() {
	s := c.features
	s.Add(FeatureInfo{Name: "Width", Category: "ImageFormatControl", Type: FeatureInt, Access: AccessReadWrite,
		StreamLocked: true, IntMin: 8, IntMax: 4096, IntInc: 2, Unit: "px"}, c.config.Width)
	s.Add(FeatureInfo{Name: "Height", Category: "ImageFormatControl", Type: FeatureInt, Access: AccessReadWrite,
		StreamLocked: true, IntMin: 8, IntMax: 3072, IntInc: 2, Unit: "px"}, c.config.Height)

	formats := make([]string, 0, len(frame.PixelFormatToEncoding))
	for pf := range frame.PixelFormatToEncoding {
		formats = append(formats, pf)
	}
	sort.Strings(formats)
	s.Add(FeatureInfo{Name: "PixelFormat", Category: "ImageFormatControl", Type: FeatureEnum, Access: AccessReadWrite,
		StreamLocked: true, Options: formats}, c.config.PixelFormat)

	s.Add(FeatureInfo{Name: "AcquisitionFrameRate", Category: "AcquisitionControl", Type: FeatureFloat,
		Access: AccessReadWrite, FloatMin: 1, FloatMax: 200, Unit: "Hz"}, c.config.FrameRate)
	s.Add(FeatureInfo{Name: "ExposureTime", Category: "AcquisitionControl", Type: FeatureFloat,
		Access: AccessReadWrite, FloatMin: 10, FloatMax: 1e6, Unit: "us"}, 5000.0)
	s.Add(FeatureInfo{Name: "Gain", Category: "AnalogControl", Type: FeatureFloat,
		Access: AccessReadWrite, FloatMin: 0, FloatMax: 48, Unit: "dB"}, 0.0)
	s.Add(FeatureInfo{Name: "TriggerMode", Category: "AcquisitionControl", Type: FeatureEnum,
		Access: AccessReadWrite, Options: []string{"Off", "On"}}, "Off")
	s.Add(FeatureInfo{Name: "ReverseX", Category: "ImageFormatControl", Type: FeatureBool,
		Access: AccessReadWrite, StreamLocked: true}, false)
	s.Add(FeatureInfo{Name: "DeviceUserID", Category: "DeviceControl", Type: FeatureString,
		Access: AccessReadWrite, MaxLength: 64}, "")
	s.Add(FeatureInfo{Name: "DeviceSerialNumber", Category: "DeviceControl", Type: FeatureString,
		Access: AccessReadOnly}, c.serial())
	s.Add(FeatureInfo{Name: "DeviceModelName", Category: "DeviceControl", Type: FeatureString,
		Access: AccessReadOnly}, "Simulated Camera")

	s.AddCommand(FeatureInfo{Name: "AcquisitionStart", Category: "AcquisitionControl"}, c.StartStream)
	s.AddCommand(FeatureInfo{Name: "AcquisitionStop", Category: "AcquisitionControl"}, c.StopStream)
}

func (c *Camera) serial() string {
	if c.config.CameraID != "" {
		return c.config.CameraID
	}
	return "SIM-" + c.config.Name
}

// Node returns the camera's bus node.
func (c *Camera) Node() *bus.Node {
	return c.node
}

// Name returns the node's base name.
func (c *Camera) Name() string {
	return c.node.Name()
}

// ImageTopic returns the resolved image topic.
func (c *Camera) ImageTopic() string {
	return c.imagePub.Topic()
}

// Features returns the feature store.
func (c *Camera) Features() *FeatureStore {
	return c.features
}

// CameraInfo returns a copy of the current calibration.
func (c *Camera) CameraInfo() CameraInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return *c.info
}

// Streaming reports whether frames are being published.
func (c *Camera) Streaming() bool {
	return c.streaming.Load()
}

// Published returns the number of frames published.
func (c *Camera) Published() uint64 {
	return c.published.Load()
}

// StartStream begins publishing frames at AcquisitionFrameRate with the
// configured buffer count.
func (c *Camera) StartStream() error {
	return c.startStream(0)
}

// startStream starts acquisition with bufferCount frame buffers; 0 keeps
// the configured count.
func (c *Camera) startStream(bufferCount int) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if bufferCount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuffers, bufferCount)
	}
	if bufferCount == 0 {
		bufferCount = c.config.BufferCount
	}
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.streaming.Load() {
		return ErrAlreadyStreaming
	}

	pattern, err := c.pattern()
	if err != nil {
		return err
	}
	rate, err := c.features.Float("AcquisitionFrameRate")
	if err != nil {
		return err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("%w: %g fps", ErrInvalidFrameRate, rate)
	}
	interval := time.Duration(float64(time.Second) / rate)
	if interval <= 0 {
		return fmt.Errorf("%w: %g fps", ErrInvalidFrameRate, rate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.streamCancel = cancel
	c.streamDone = make(chan struct{})
	c.bufferCount = bufferCount
	c.streaming.Store(true)
	go c.stream(ctx, pattern, interval, bufferCount, c.streamDone)

	c.logger.Debug("stream started", "width", pattern.Width, "height", pattern.Height,
		"encoding", pattern.Encoding, "interval", interval, "buffers", bufferCount)
	return nil
}

// BufferCount returns the buffer count of the running or last stream.
func (c *Camera) BufferCount() int {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.bufferCount
}

// Dropped returns the number of acquired frames dropped because every
// buffer was still waiting for delivery.
func (c *Camera) Dropped() uint64 {
	return c.dropped.Load()
}

// StopStream stops publishing and waits for the stream goroutine.
func (c *Camera) StopStream() error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if !c.streaming.Load() {
		return ErrNotStreaming
	}
	c.streamCancel()
	<-c.streamDone
	c.streaming.Store(false)
	c.logger.Debug("stream stopped", "published", c.published.Load())
	return nil
}

// Publish sends f on image_raw. Used to inject scripted frames.
func (c *Camera) Publish(f *frame.Frame) error {
	data, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := c.imagePub.Publish(data); err != nil {
		return err
	}
	c.published.Add(1)
	return nil
}

// Close stops streaming and the executor and destroys the node.
func (c *Camera) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.streaming.Load() {
		_ = c.StopStream()
	}
	c.cancel()
	<-c.stopped
	c.node.Destroy()
	c.logger.Info("camera node stopped")
	return nil
}

// SaveSettings writes the writable features to path.
func (c *Camera) SaveSettings(path string) error {
	return c.settings.Save(path, &Settings{
		CameraID: c.serial(),
		Features: c.features.Snapshot(),
	})
}

// LoadSettings applies a settings file.
func (c *Camera) LoadSettings(path string) error {
	settings, err := c.settings.Load(path)
	if err != nil {
		return err
	}
	return c.features.Apply(settings.Features)
}

// Render draws test frame seq with the current geometry and pixel format,
// ready for Publish.
func (c *Camera) Render(seq uint32, stamp time.Time) (*frame.Frame, error) {
	pattern, err := c.pattern()
	if err != nil {
		return nil, err
	}
	return pattern.Render(seq, stamp, c.config.CameraFrameID), nil
}

func (c *Camera) pattern() (Pattern, error) {
	width, err := c.features.Int("Width")
	if err != nil {
		return Pattern{}, err
	}
	height, err := c.features.Int("Height")
	if err != nil {
		return Pattern{}, err
	}
	pf, err := c.features.Enum("PixelFormat")
	if err != nil {
		return Pattern{}, err
	}
	enc, ok := frame.EncodingForPixelFormat(pf)
	if !ok {
		return Pattern{}, fmt.Errorf("unsupported pixel format %q", pf)
	}
	return Pattern{Width: uint32(width), Height: uint32(height), Encoding: enc}, nil
}

func (c *Camera) stamp() time.Time {
	if c.config.UseROSTime {
		return time.Now()
	}
	return time.Unix(0, 0).Add(time.Since(c.openedAt))
}

func (c *Camera) stream(ctx context.Context, pattern Pattern, interval time.Duration, buffers int, done chan struct{}) {
	defer close(done)
	ready := make(chan *frame.Frame, buffers)
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		for f := range ready {
			if err := c.Publish(f); err != nil {
				c.logger.Warn("publish failed", "error", err)
				continue
			}
			c.publishInfo()
		}
	}()
	defer func() {
		close(ready)
		<-delivered
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		f := pattern.Render(c.seq.Add(1), c.stamp(), c.config.CameraFrameID)
		select {
		case ready <- f:
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *Camera) publishInfo() {
	info := c.CameraInfo()
	data, err := wire.Marshal(&info)
	if err != nil {
		return
	}
	if err := c.infoPub.Publish(data); err != nil {
		c.logger.Debug("camera_info publish failed", "error", err)
	}
}
