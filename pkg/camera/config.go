package camera

import (
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultFrameID     = "camera_link"
	DefaultWidth       = 640
	DefaultHeight      = 480
	DefaultPixelFormat = "Mono8"
	DefaultFrameRate   = 30.0
	DefaultName        = "vimbax_camera"
	DefaultBufferCount = 7
)

// Config configures a simulated camera node. Field names follow the
// vimbax_camera_node parameters so launch files can pass them through.
type Config struct {
	// CameraID selects the device; the simulator reports it as serial.
	CameraID string `yaml:"camera_id"`

	// CameraFrameID is the coordinate frame label of published frames.
	CameraFrameID string `yaml:"camera_frame_id"`

	// SettingsFile is a YAML feature snapshot applied at startup.
	SettingsFile string `yaml:"settings_file"`

	// CameraInfoURL points to a calibration YAML (file:// accepted).
	CameraInfoURL string `yaml:"camera_info_url"`

	// UseROSTime stamps frames with the wall clock instead of device time.
	UseROSTime bool `yaml:"use_ros_time"`

	// Autostream starts streaming once the node is up when non-zero.
	Autostream int `yaml:"autostream"`

	Width       int64   `yaml:"width"`
	Height      int64   `yaml:"height"`
	PixelFormat string  `yaml:"pixel_format"`
	FrameRate   float64 `yaml:"frame_rate"`

	// Name and Namespace place the node; the namespace defaults to Name.
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace"`
	Remaps    map[string]string `yaml:"remappings"`

	// BufferCount is the number of acquired frames that may wait for
	// delivery; further frames are dropped. stream_start may override it.
	BufferCount int `yaml:"buffer_count"`
}

// DefaultConfig returns the default camera configuration.
func DefaultConfig() Config {
	return Config{
		CameraFrameID: DefaultFrameID,
		UseROSTime:    true,
		Autostream:    1,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		PixelFormat:   DefaultPixelFormat,
		FrameRate:     DefaultFrameRate,
		Name:          DefaultName,
		BufferCount:   DefaultBufferCount,
	}
}

// FrameInterval returns the period between frames.
func (c Config) FrameInterval() time.Duration {
	rate := c.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// ApplyParameters overrides fields from loosely typed launch parameters.
// Unknown keys are rejected.
func (c *Config) ApplyParameters(params map[string]any) error {
	for key, raw := range params {
		var err error
		switch key {
		case "camera_id":
			c.CameraID, err = asString(key, raw)
		case "camera_frame_id":
			c.CameraFrameID, err = asString(key, raw)
		case "settings_file":
			c.SettingsFile, err = asString(key, raw)
		case "camera_info_url":
			c.CameraInfoURL, err = asString(key, raw)
		case "use_ros_time":
			c.UseROSTime, err = asBool(key, raw)
		case "autostream":
			var v int64
			v, err = asInt(key, raw)
			c.Autostream = int(v)
		case "width":
			c.Width, err = asInt(key, raw)
		case "height":
			c.Height, err = asInt(key, raw)
		case "pixel_format":
			c.PixelFormat, err = asString(key, raw)
		case "frame_rate":
			c.FrameRate, err = asFloat(key, raw)
		case "buffer_count":
			var v int64
			v, err = asInt(key, raw)
			c.BufferCount = int(v)
		default:
			err = fmt.Errorf("unknown camera parameter %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asString(key string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func asBool(key string, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "true", "True", "1":
			return true, nil
		case "false", "False", "0":
			return false, nil
		}
	}
	if i, ok := toInt64(v); ok {
		return i != 0, nil
	}
	return false, fmt.Errorf("parameter %s: expected bool, got %v", key, v)
}

func asInt(key string, v any) (int64, error) {
	if i, ok := toInt64(v); ok {
		return i, nil
	}
	if s, ok := v.(string); ok {
		var i int64
		if _, err := fmt.Sscan(s, &i); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("parameter %s: expected integer, got %v", key, v)
}

func asFloat(key string, v any) (float64, error) {
	if f, ok := toFloat64(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		var f float64
		if _, err := fmt.Sscan(s, &f); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("parameter %s: expected number, got %v", key, v)
}
