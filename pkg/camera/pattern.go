package camera

import (
	"time"

	"github.com/camharness/camharness-go/pkg/frame"
)

// Pattern renders test images: a diagonal gradient that shifts by one
// pixel per frame, so consecutive frames differ.
type Pattern struct {
	Width    uint32
	Height   uint32
	Encoding frame.Encoding
}

// Render returns a frame with sequence number seq.
func (p Pattern) Render(seq uint32, stamp time.Time, frameID string) *frame.Frame {
	bpp := uint32(p.Encoding.BytesPerPixel())
	if bpp == 0 {
		bpp = 1
	}
	step := p.Width * bpp
	data := make([]byte, int(step)*int(p.Height))
	for y := uint32(0); y < p.Height; y++ {
		row := data[y*step : (y+1)*step]
		for x := uint32(0); x < p.Width; x++ {
			v := byte(x + y + seq)
			for c := uint32(0); c < bpp; c++ {
				row[x*bpp+c] = v
			}
		}
	}
	return &frame.Frame{
		FrameID:  frameID,
		Seq:      seq,
		Stamp:    stamp,
		Width:    p.Width,
		Height:   p.Height,
		Encoding: p.Encoding,
		Step:     step,
		Data:     data,
	}
}
