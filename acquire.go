package depthcam

import (
	"errors"
	"fmt"

	"github.com/deltaglider/depthcam/pkg/driver"
	"github.com/deltaglider/depthcam/pkg/frame"
)

// FrameBundle is one synchronized, aligned, unit-correct color+depth
// pair. AlignedDepth is reprojected into RGB's pixel grid, so the same
// (x, y) in both refers to the same scene point. Each bundle is freshly
// allocated and owned by the caller.
type FrameBundle struct {
	RGB          *frame.RGB8Img
	AlignedDepth *frame.DepthMap
}

// Acquire blocks until the driver delivers a synchronized depth+color
// pair, aligns the depth frame into the color grid, converts it to
// meters and packages the bundle. Fails with ErrFrameTimeout when no
// pair arrives in time (the connection stays usable) and with
// ErrNotConnected before Connect or after Close. Retry is a caller
// concern.
func (c *Camera) Acquire() (*FrameBundle, error) {
	if c.pipe == nil {
		return nil, ErrNotConnected
	}

	pair, err := c.pipe.WaitForFrames(c.timeout)
	if err != nil {
		if errors.Is(err, driver.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrFrameTimeout, err)
		}
		return nil, fmt.Errorf("depthcam: wait for frames: %w", err)
	}

	// Alignment must precede any depth value extraction.
	aligned, err := c.align.Align(pair)
	if err != nil {
		return nil, fmt.Errorf("depthcam: align frames: %w", err)
	}

	depth, err := frame.DecodeZ16(aligned.Depth, aligned.Width, aligned.Height, c.calib.scale)
	if err != nil {
		return nil, fmt.Errorf("depthcam: decode depth frame: %w", err)
	}
	rgb, err := frame.DecodeRGB8(aligned.Color, aligned.Width, aligned.Height)
	if err != nil {
		return nil, fmt.Errorf("depthcam: decode color frame: %w", err)
	}

	return &FrameBundle{RGB: rgb, AlignedDepth: depth}, nil
}
