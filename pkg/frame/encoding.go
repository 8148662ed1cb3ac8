package frame

// Encoding names a pixel layout, using the sensor_msgs/image_encodings names.
type Encoding string

const (
	Mono8    Encoding = "mono8"
	Mono16   Encoding = "mono16"
	RGB8     Encoding = "rgb8"
	BGR8     Encoding = "bgr8"
	RGBA8    Encoding = "rgba8"
	BGRA8    Encoding = "bgra8"
	BayerRG8 Encoding = "bayer_rggb8"
	BayerGR8 Encoding = "bayer_grbg8"
	BayerGB8 Encoding = "bayer_gbrg8"
	BayerBG8 Encoding = "bayer_bggr8"
	YUV422   Encoding = "yuv422"
)

var bytesPerPixel = map[Encoding]int{
	Mono8:    1,
	Mono16:   2,
	RGB8:     3,
	BGR8:     3,
	RGBA8:    4,
	BGRA8:    4,
	BayerRG8: 1,
	BayerGR8: 1,
	BayerGB8: 1,
	BayerBG8: 1,
	YUV422:   2,
}

// BytesPerPixel returns the pixel size, or 0 for unknown encodings.
func (e Encoding) BytesPerPixel() int {
	return bytesPerPixel[e]
}

// IsValid returns true for known encodings.
func (e Encoding) IsValid() bool {
	return e.BytesPerPixel() > 0
}

// Channels returns the number of color channels.
func (e Encoding) Channels() int {
	switch e {
	case RGB8, BGR8:
		return 3
	case RGBA8, BGRA8:
		return 4
	case YUV422:
		return 2
	case Mono8, Mono16, BayerRG8, BayerGR8, BayerGB8, BayerBG8:
		return 1
	default:
		return 0
	}
}

// PixelFormatToEncoding maps GenICam PixelFormat names to encodings.
var PixelFormatToEncoding = map[string]Encoding{
	"Mono8":      Mono8,
	"Mono16":     Mono16,
	"RGB8":       RGB8,
	"BGR8":       BGR8,
	"RGBa8":      RGBA8,
	"BGRa8":      BGRA8,
	"BayerRG8":   BayerRG8,
	"BayerGR8":   BayerGR8,
	"BayerGB8":   BayerGB8,
	"BayerBG8":   BayerBG8,
	"YCbCr422_8": YUV422,
}

// EncodingForPixelFormat returns the encoding for a GenICam PixelFormat.
func EncodingForPixelFormat(pf string) (Encoding, bool) {
	e, ok := PixelFormatToEncoding[pf]
	return e, ok
}
