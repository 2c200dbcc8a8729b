// Package depthcam manages the lifecycle of a depth-sensing camera and
// produces synchronized, aligned, metric color/depth frame bundles.
//
// The package targets one physical device at a time, selected from the
// pool of attached devices. Construction performs no I/O; Connect opens
// and starts the device pipeline and captures its calibration, Acquire
// blocks for one frame bundle, Close releases everything. All calls are
// synchronous; Close must not race an in-flight Acquire.
package depthcam

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	ilog "github.com/deltaglider/depthcam/internal/logging"
	"github.com/deltaglider/depthcam/pkg/driver"
	"github.com/deltaglider/depthcam/pkg/frame"
)

const defaultFrameTimeout = 5 * time.Second

// Config selects and shapes the camera streams. It is supplied once and
// is immutable for the connection's lifetime.
type Config struct {
	// DeviceID is the serial of the preferred device. It is a
	// preference, not a guarantee: when it does not match any attached
	// device, the first available device is used instead and a warning
	// is logged.
	DeviceID string
	// Width, Height and FPS apply to both the depth and the color
	// stream. Zero values default to 640x480 @ 30.
	Width  int
	Height int
	FPS    int
}

func (c *Config) applyDefaults() {
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
}

// Camera owns one device connection with a clear open/closed lifecycle.
// The zero-value-like state after New holds configuration only; Connect
// acquires the device.
type Camera struct {
	config  Config
	drv     driver.Driver
	drvName string
	log     logging.LeveledLogger
	timeout time.Duration

	pipe   driver.Pipeline
	align  driver.Aligner
	calib  *calibration
	serial string
}

// Option configures a Camera at construction time.
type Option func(*Camera)

// WithDriver injects the SDK binding to use instead of resolving one
// from the registry.
func WithDriver(d driver.Driver) Option {
	return func(c *Camera) {
		c.drv = d
	}
}

// WithDriverName resolves the SDK binding with the given registry name
// instead of the default preference order.
func WithDriverName(name string) Option {
	return func(c *Camera) {
		c.drvName = name
	}
}

// WithLoggerFactory replaces the default logger factory so callers can
// route or capture connection events.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Camera) {
		c.log = f.NewLogger("depthcam")
	}
}

// WithFrameTimeout sets how long Acquire waits for a synchronized frame
// pair before failing with ErrFrameTimeout. Default is 5s.
func WithFrameTimeout(d time.Duration) Option {
	return func(c *Camera) {
		c.timeout = d
	}
}

// New builds a Camera. No device access happens here; only Connect
// performs I/O.
func New(config Config, opts ...Option) *Camera {
	config.applyDefaults()
	c := &Camera{
		config:  config,
		log:     ilog.NewLogger("depthcam"),
		timeout: defaultFrameTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect selects a device, starts its depth and color streams and
// captures calibration. Selection policy: the configured DeviceID if it
// is attached, otherwise the first available device (with a warning if
// a DeviceID was requested but absent). Fails with ErrNoDeviceFound
// when nothing is attached and with *ConnectionError on driver
// failures; it never retries.
func (c *Camera) Connect() error {
	if c.pipe != nil {
		return fmt.Errorf("depthcam: already connected to device %s", c.serial)
	}
	if err := c.resolveDriver(); err != nil {
		return err
	}

	devices, err := c.drv.Devices()
	if err != nil {
		return fmt.Errorf("depthcam: enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return ErrNoDeviceFound
	}

	selected := c.selectDevice(devices)

	pipe, err := c.drv.OpenPipeline(selected.Serial)
	if err != nil {
		return &ConnectionError{Serial: selected.Serial, Reason: err}
	}

	streams := []driver.StreamConfig{
		{Kind: driver.StreamDepth, Width: c.config.Width, Height: c.config.Height, FPS: c.config.FPS, Format: frame.FormatZ16},
		{Kind: driver.StreamColor, Width: c.config.Width, Height: c.config.Height, FPS: c.config.FPS, Format: frame.FormatRGB8},
	}
	for _, s := range streams {
		if err := pipe.EnableStream(s); err != nil {
			pipe.Stop()
			return &ConnectionError{Serial: selected.Serial, Reason: err}
		}
	}

	profiles, err := pipe.Start()
	if err != nil {
		pipe.Stop()
		return &ConnectionError{Serial: selected.Serial, Reason: err}
	}

	// Calibration is captured once per connection and never re-queried
	// per frame.
	c.calib = &calibration{
		intrinsics: profiles.ColorIntrinsics(),
		scale:      profiles.DepthScale(),
	}
	c.align = pipe.Aligner(driver.StreamColor)
	c.pipe = pipe
	c.serial = selected.Serial
	c.log.Infof("connected to device %s", c.serial)
	return nil
}

// selectDevice applies the fallback policy against the enumeration
// result at connect time. Index 0 is "first available"; no stronger
// ordering is assumed.
func (c *Camera) selectDevice(devices []driver.Device) driver.Device {
	if c.config.DeviceID == "" {
		c.log.Infof("no device id specified, using first available device: %s (%s)",
			devices[0].Serial, devices[0].Name)
		return devices[0]
	}

	serials := make([]string, len(devices))
	for i, d := range devices {
		if d.Serial == c.config.DeviceID {
			return d
		}
		serials[i] = d.Serial
	}

	c.log.Warnf("requested device %s not found, available devices: %v", c.config.DeviceID, serials)
	c.log.Infof("using first available device: %s (%s)", devices[0].Serial, devices[0].Name)
	return devices[0]
}

func (c *Camera) resolveDriver() error {
	if c.drv != nil {
		return nil
	}
	if c.drvName != "" {
		d, err := driver.Get(c.drvName)
		if err != nil {
			return err
		}
		c.drv = d
		return nil
	}
	names := driver.Names()
	if len(names) == 0 {
		return fmt.Errorf("depthcam: no drivers registered")
	}
	// Prefer real hardware when its binding is compiled in.
	name := names[0]
	for _, n := range names {
		if n == "realsense" {
			name = n
			break
		}
	}
	d, err := driver.Get(name)
	if err != nil {
		return err
	}
	c.drv = d
	return nil
}

// Close releases the pipeline and all driver-held resources. It is
// idempotent and a no-op when the camera never connected.
func (c *Camera) Close() error {
	if c.pipe == nil {
		return nil
	}
	err := c.pipe.Stop()
	c.pipe = nil
	c.align = nil
	c.calib = nil
	c.serial = ""
	return err
}
