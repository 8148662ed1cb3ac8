// Package frame defines the image sample carried on camera topics.
package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/camharness/camharness-go/pkg/wire"
)

// Frame is one raw image sample.
//
// CBOR encoding:
//
//	{
//	  1: frameId,      // string: coordinate frame label
//	  2: seq,          // uint32
//	  3: stamp,        // source timestamp
//	  4: width,        // uint32
//	  5: height,       // uint32
//	  6: encoding,     // string
//	  7: isBigEndian,  // bool
//	  8: step,         // uint32: row length in bytes
//	  9: data          // bstr
//	}
type Frame struct {
	FrameID     string    `cbor:"1,keyasint,omitempty"`
	Seq         uint32    `cbor:"2,keyasint,omitempty"`
	Stamp       time.Time `cbor:"3,keyasint"`
	Width       uint32    `cbor:"4,keyasint"`
	Height      uint32    `cbor:"5,keyasint"`
	Encoding    Encoding  `cbor:"6,keyasint"`
	IsBigEndian bool      `cbor:"7,keyasint,omitempty"`
	Step        uint32    `cbor:"8,keyasint"`
	Data        []byte    `cbor:"9,keyasint"`

	// ReceivedAt is set by the receiver and never encoded.
	ReceivedAt time.Time `cbor:"-"`
}

// Validation errors.
var (
	ErrEmptyGeometry   = errors.New("frame has zero width or height")
	ErrUnknownEncoding = errors.New("unknown pixel encoding")
	ErrStepTooSmall    = errors.New("step smaller than width * bytes per pixel")
	ErrDataSize        = errors.New("data length does not match step * height")
)

// Validate checks that geometry, encoding and payload size agree.
func (f *Frame) Validate() error {
	if f.Width == 0 || f.Height == 0 {
		return ErrEmptyGeometry
	}
	bpp := f.Encoding.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, f.Encoding)
	}
	if f.Step < f.Width*uint32(bpp) {
		return fmt.Errorf("%w: step=%d width=%d bpp=%d", ErrStepTooSmall, f.Step, f.Width, bpp)
	}
	if uint64(len(f.Data)) != uint64(f.Step)*uint64(f.Height) {
		return fmt.Errorf("%w: got %d, want %d", ErrDataSize, len(f.Data), uint64(f.Step)*uint64(f.Height))
	}
	return nil
}

// Size returns the payload size in bytes.
func (f *Frame) Size() int {
	return len(f.Data)
}

// Digest returns the hex-encoded BLAKE2b-256 hash of the pixel data.
func (f *Frame) Digest() string {
	sum := blake2b.Sum256(f.Data)
	return hex.EncodeToString(sum[:])
}

// Latency returns the time between the source stamp and receipt.
// Zero if either timestamp is unset.
func (f *Frame) Latency() time.Duration {
	if f.Stamp.IsZero() || f.ReceivedAt.IsZero() {
		return 0
	}
	return f.ReceivedAt.Sub(f.Stamp)
}

// Encode encodes the frame to CBOR bytes.
func Encode(f *Frame) ([]byte, error) {
	data, err := wire.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes CBOR bytes into a frame. The result is not validated.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := wire.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}
