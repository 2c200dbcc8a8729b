package frame

// Format identifies the raw pixel layout of a frame as delivered by a
// depth camera driver.
type Format string

const (
	// FormatZ16 is 16-bit little-endian depth, one channel.
	// https://www.kernel.org/doc/html/v5.9/userspace-api/media/v4l/pixfmt-z16.html
	FormatZ16 Format = "Z16"
	// FormatRGB8 is 8-bit per channel RGB, three channels.
	FormatRGB8 Format = "RGB8"
)
