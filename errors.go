package depthcam

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeviceFound means enumeration returned no attached devices
	// at connect time.
	ErrNoDeviceFound = errors.New("depthcam: no devices found")
	// ErrNotConnected means an operation that needs an active
	// connection was called before Connect or after Close.
	ErrNotConnected = errors.New("depthcam: not connected")
	// ErrFrameTimeout means no synchronized frame pair arrived within
	// the configured wait. The connection stays usable; retrying is a
	// caller decision.
	ErrFrameTimeout = errors.New("depthcam: timed out waiting for frames")
)

// ConnectionError reports a driver-level failure to open or start the
// pipeline for a device. It wraps the driver's error.
type ConnectionError struct {
	Serial string
	Reason error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("depthcam: could not connect to camera %s: %v", e.Serial, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Reason }
