package frame

import (
	"encoding/binary"
	"fmt"
)

// DepthMap is a single-channel map of metric depth values. Channels is
// always 1; it is carried explicitly so downstream geometry can rely on
// a fixed rank of HxWx1 regardless of sensor resolution.
type DepthMap struct {
	// Pix holds depth in meters, row-major. The value at (x, y) is
	// Pix[(y*Width+x)*Channels].
	Pix      []float32
	Width    int
	Height   int
	Channels int
}

// DecodeZ16 converts a raw little-endian Z16 buffer into a DepthMap,
// multiplying every sample by scale exactly once. scale is the sensor's
// meters-per-raw-unit factor.
func DecodeZ16(raw []byte, width, height int, scale float64) (*DepthMap, error) {
	expectedSize := 2 * width * height
	if expectedSize != len(raw) {
		return nil, fmt.Errorf("frame length (%d) not expected size (%d)", len(raw), expectedSize)
	}
	d := &DepthMap{
		Pix:      make([]float32, width*height),
		Width:    width,
		Height:   height,
		Channels: 1,
	}
	for i := range d.Pix {
		z := binary.LittleEndian.Uint16(raw[2*i : 2*i+2])
		d.Pix[i] = float32(float64(z) * scale)
	}
	return d, nil
}

// At returns the depth in meters at (x, y).
func (d *DepthMap) At(x, y int) float32 {
	return d.Pix[(y*d.Width+x)*d.Channels]
}
