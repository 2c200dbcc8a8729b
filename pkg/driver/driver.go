// Package driver defines the narrow boundary between the depthcam core
// and a depth camera SDK. The SDK owns stream multiplexing, time
// synchronization and raw frame delivery; implementations of Driver
// adapt one SDK to this surface.
package driver

import (
	"errors"
	"time"

	"github.com/deltaglider/depthcam/pkg/frame"
)

// ErrTimeout is returned by Pipeline.WaitForFrames when no synchronized
// frame pair arrives within the given timeout.
var ErrTimeout = errors.New("driver: timed out waiting for frames")

// Device identifies one physical camera currently attached to the host.
type Device struct {
	Serial string
	Name   string
}

// StreamKind enumerates the stream types a pipeline can carry.
type StreamKind string

const (
	StreamDepth StreamKind = "depth"
	StreamColor StreamKind = "color"
)

// StreamConfig describes one stream to enable on a pipeline.
type StreamConfig struct {
	Kind   StreamKind
	Width  int
	Height int
	FPS    int
	Format frame.Format
}

// Intrinsics are the pinhole parameters of a video stream profile.
type Intrinsics struct {
	Fx, Fy   float64
	Ppx, Ppy float64
	Width    int
	Height   int
	Model    string
	Coeffs   [5]float64
}

// FramePair is one synchronized raw depth+color capture. Depth is Z16
// little-endian, Color is RGB8, both Width x Height after alignment.
// Drivers may reuse the buffers across deliveries; they are only valid
// until the next WaitForFrames.
type FramePair struct {
	Width  int
	Height int
	Depth  []byte
	Color  []byte

	// Native optionally carries the SDK's composite frame handle so the
	// Aligner can reproject without a round trip through raw buffers.
	// Drivers that deliver plain buffers leave it nil. The Aligner owns
	// releasing it.
	Native any
}

// Driver is one SDK binding. Devices reflects the set of attached
// devices at call time and is never cached by the core.
type Driver interface {
	Devices() ([]Device, error)
	OpenPipeline(serial string) (Pipeline, error)
}

// Pipeline is an open but not necessarily started capture session bound
// to one device.
type Pipeline interface {
	EnableStream(s StreamConfig) error
	// Start begins streaming and returns the active stream profiles.
	// A device already held by another pipeline fails here.
	Start() (StreamProfiles, error)
	Stop() error
	// WaitForFrames blocks until a synchronized pair is delivered or
	// timeout elapses, in which case the error wraps ErrTimeout.
	WaitForFrames(timeout time.Duration) (*FramePair, error)
	// Aligner returns the SDK's reprojection into the given reference
	// stream's pixel grid.
	Aligner(ref StreamKind) Aligner
}

// StreamProfiles exposes the calibration of the started streams.
type StreamProfiles interface {
	ColorIntrinsics() Intrinsics
	DepthScale() float64
}

// Aligner reprojects the depth half of a pair into the reference
// stream's pixel grid.
type Aligner interface {
	Align(p *FramePair) (*FramePair, error)
}
