package depthcam

import (
	"github.com/deltaglider/depthcam/pkg/driver"
)

// Intrinsics are the active color stream's pinhole parameters. They are
// captured once at Connect and never change while a connection is
// active.
type Intrinsics = driver.Intrinsics

// calibration holds the parameters extracted once per connection. It is
// owned by the Camera and torn down on Close.
type calibration struct {
	intrinsics Intrinsics
	scale      float64
}

// Intrinsics returns the color stream intrinsics of the active
// connection.
func (c *Camera) Intrinsics() (Intrinsics, error) {
	if c.calib == nil {
		return Intrinsics{}, ErrNotConnected
	}
	return c.calib.intrinsics, nil
}

// DepthScale returns the meters-per-raw-unit factor of the active
// connection's depth sensor. Every raw depth value is multiplied by
// exactly this factor exactly once during Acquire.
func (c *Camera) DepthScale() (float64, error) {
	if c.calib == nil {
		return 0, ErrNotConnected
	}
	return c.calib.scale, nil
}
