package assertions

import (
	"fmt"

	"github.com/camharness/camharness-go/pkg/frame"
)

// FrameGeometry asserts a frame's width and height.
func FrameGeometry(f *frame.Frame, width, height uint32) *Result {
	if f == nil {
		return Fail("no frame", fmt.Sprintf("%dx%d", width, height), nil)
	}
	if f.Width == width && f.Height == height {
		return Pass(fmt.Sprintf("frame is %dx%d", width, height))
	}
	return Fail("frame geometry mismatch",
		fmt.Sprintf("%dx%d", width, height), fmt.Sprintf("%dx%d", f.Width, f.Height))
}

// FrameEncoding asserts a frame's pixel encoding.
func FrameEncoding(f *frame.Frame, encoding frame.Encoding) *Result {
	if f == nil {
		return Fail("no frame", encoding, nil)
	}
	if f.Encoding == encoding {
		return Pass(fmt.Sprintf("frame encoding is %s", encoding))
	}
	return Fail("frame encoding mismatch", encoding, f.Encoding)
}

// FrameDataSize asserts that the payload matches the frame's geometry.
func FrameDataSize(f *frame.Frame) *Result {
	if f == nil {
		return Fail("no frame", "frame", nil)
	}
	if err := f.Validate(); err != nil {
		return Fail(err.Error(), int(f.Step)*int(f.Height), len(f.Data))
	}
	return Pass(fmt.Sprintf("frame payload is %d bytes", len(f.Data)))
}

// FramesInOrder asserts strictly increasing stamps across frames, in the
// order they were received.
func FramesInOrder(frames []*frame.Frame) *Result {
	for i := 1; i < len(frames); i++ {
		prev, cur := frames[i-1], frames[i]
		if !cur.Stamp.After(prev.Stamp) {
			return Fail(fmt.Sprintf("frame %d is out of order", i+1), fmt.Sprintf("after %v", prev.Stamp), cur.Stamp)
		}
	}
	return Pass(fmt.Sprintf("%d frames in order", len(frames)))
}
