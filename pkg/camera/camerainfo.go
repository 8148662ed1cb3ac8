package camera

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matrix is a row-major matrix as written by camera calibration tools.
type Matrix struct {
	Rows int       `yaml:"rows" cbor:"1,keyasint"`
	Cols int       `yaml:"cols" cbor:"2,keyasint"`
	Data []float64 `yaml:"data" cbor:"3,keyasint"`
}

// Validate checks that the data length matches rows * cols.
func (m Matrix) Validate(name string) error {
	if m.Rows*m.Cols != len(m.Data) {
		return fmt.Errorf("%s: %dx%d matrix has %d values", name, m.Rows, m.Cols, len(m.Data))
	}
	return nil
}

// CameraInfo is the calibration published on camera_info.
type CameraInfo struct {
	ImageWidth             int    `yaml:"image_width" cbor:"1,keyasint"`
	ImageHeight            int    `yaml:"image_height" cbor:"2,keyasint"`
	CameraName             string `yaml:"camera_name" cbor:"3,keyasint,omitempty"`
	FrameID                string `yaml:"-" cbor:"4,keyasint,omitempty"`
	CameraMatrix           Matrix `yaml:"camera_matrix" cbor:"5,keyasint"`
	DistortionModel        string `yaml:"distortion_model" cbor:"6,keyasint"`
	DistortionCoefficients Matrix `yaml:"distortion_coefficients" cbor:"7,keyasint"`
	RectificationMatrix    Matrix `yaml:"rectification_matrix" cbor:"8,keyasint"`
	ProjectionMatrix       Matrix `yaml:"projection_matrix" cbor:"9,keyasint"`
}

// DefaultCameraInfo returns an uncalibrated pinhole model for the given
// geometry, as a driver reports when no calibration URL is set.
func DefaultCameraInfo(width, height int) *CameraInfo {
	return &CameraInfo{
		ImageWidth:             width,
		ImageHeight:            height,
		DistortionModel:        "plumb_bob",
		CameraMatrix:           Matrix{Rows: 3, Cols: 3, Data: make([]float64, 9)},
		DistortionCoefficients: Matrix{Rows: 1, Cols: 5, Data: make([]float64, 5)},
		RectificationMatrix:    Matrix{Rows: 3, Cols: 3, Data: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		ProjectionMatrix:       Matrix{Rows: 3, Cols: 4, Data: make([]float64, 12)},
	}
}

// LoadCameraInfo reads a calibration file. url may be a plain path or a
// file:// URL.
func LoadCameraInfo(url string) (*CameraInfo, error) {
	path := url
	if strings.Contains(url, "://") {
		if !strings.HasPrefix(url, "file://") {
			return nil, fmt.Errorf("camera info %q: unsupported URL scheme", url)
		}
		path = strings.TrimPrefix(url, "file://")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera info: %w", err)
	}
	return ParseCameraInfo(data)
}

// ParseCameraInfo parses calibration YAML.
func ParseCameraInfo(data []byte) (*CameraInfo, error) {
	var info CameraInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("camera info: %w", err)
	}
	for name, m := range map[string]Matrix{
		"camera_matrix":           info.CameraMatrix,
		"distortion_coefficients": info.DistortionCoefficients,
		"rectification_matrix":    info.RectificationMatrix,
		"projection_matrix":       info.ProjectionMatrix,
	} {
		if err := m.Validate(name); err != nil {
			return nil, fmt.Errorf("camera info: %w", err)
		}
	}
	return &info, nil
}
