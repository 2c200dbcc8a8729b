// Package synthcam provides a synthetic depth camera driver for testing
// and for running the examples without hardware.
package synthcam

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/deltaglider/depthcam/pkg/driver"
)

// DriverName is the name this package registers under.
const DriverName = "synthcam"

const defaultDepthScale = 0.001 // millimeter raw units

func init() {
	driver.Register(DriverName, func() (driver.Driver, error) {
		return New(), nil
	})
}

// Synth is an in-memory depth camera SDK. It exposes a configurable
// set of fake devices, each delivering a deterministic RGB gradient and
// a horizontal depth ramp at the configured frame rate.
type Synth struct {
	mu      sync.Mutex
	devices []driver.Device
	busy    map[string]bool

	scale   float64
	rampMin uint16
	rampMax uint16
	uniform uint16
	hasRamp bool
}

// Option configures a Synth.
type Option func(*Synth)

// WithDevices replaces the default single-device set.
func WithDevices(devs ...driver.Device) Option {
	return func(s *Synth) {
		s.devices = devs
	}
}

// WithDepthScale sets the meters-per-raw-unit factor the fake depth
// sensor reports.
func WithDepthScale(scale float64) Option {
	return func(s *Synth) {
		s.scale = scale
	}
}

// WithUniformDepth makes every depth sample the given raw value instead
// of the default ramp.
func WithUniformDepth(raw uint16) Option {
	return func(s *Synth) {
		s.uniform = raw
		s.hasRamp = false
	}
}

// New builds a Synth with one device, serial "000000000111", unless
// overridden by options.
func New(opts ...Option) *Synth {
	s := &Synth{
		devices: []driver.Device{
			{Serial: "000000000111", Name: "Synthetic Depth Camera"},
		},
		busy:    make(map[string]bool),
		scale:   defaultDepthScale,
		rampMin: 500,
		rampMax: 3500,
		hasRamp: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Synth) Devices() ([]driver.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devs := make([]driver.Device, len(s.devices))
	copy(devs, s.devices)
	return devs, nil
}

func (s *Synth) OpenPipeline(serial string) (driver.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, d := range s.devices {
		if d.Serial == serial {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("synthcam: no device with serial %q", serial)
	}
	if s.busy[serial] {
		return nil, fmt.Errorf("synthcam: device %q is busy", serial)
	}
	s.busy[serial] = true

	p := &pipeline{
		parent: s,
		serial: serial,
		state:  driver.StateClosed,
	}
	if err := p.state.Update(driver.StateOpened, func() error { return nil }); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Synth) release(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, serial)
}

type pipeline struct {
	parent *Synth
	serial string
	state  driver.State

	streams map[driver.StreamKind]driver.StreamConfig
	tick    *time.Ticker
	n       int

	depthBase []byte
	colorBase []byte
}

func (p *pipeline) EnableStream(s driver.StreamConfig) error {
	if p.state == driver.StateRunning {
		return fmt.Errorf("synthcam: cannot enable %s stream while running", s.Kind)
	}
	if s.Width <= 0 || s.Height <= 0 || s.FPS <= 0 {
		return fmt.Errorf("synthcam: invalid %s stream config %dx%d@%d", s.Kind, s.Width, s.Height, s.FPS)
	}
	if p.streams == nil {
		p.streams = make(map[driver.StreamKind]driver.StreamConfig)
	}
	p.streams[s.Kind] = s
	return nil
}

func (p *pipeline) Start() (driver.StreamProfiles, error) {
	depth, ok := p.streams[driver.StreamDepth]
	if !ok {
		return nil, fmt.Errorf("synthcam: depth stream not enabled")
	}
	color, ok := p.streams[driver.StreamColor]
	if !ok {
		return nil, fmt.Errorf("synthcam: color stream not enabled")
	}
	if depth.Width != color.Width || depth.Height != color.Height {
		return nil, fmt.Errorf("synthcam: stream sizes differ: depth %dx%d, color %dx%d",
			depth.Width, depth.Height, color.Width, color.Height)
	}

	err := p.state.Update(driver.StateRunning, func() error {
		p.renderBase(color.Width, color.Height)
		p.tick = time.NewTicker(time.Duration(float64(time.Second) / float64(color.FPS)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &profiles{
		intrinsics: driver.Intrinsics{
			Fx:     0.96 * float64(color.Width),
			Fy:     0.96 * float64(color.Width),
			Ppx:    float64(color.Width) / 2,
			Ppy:    float64(color.Height) / 2,
			Width:  color.Width,
			Height: color.Height,
			Model:  "brown_conrady",
		},
		scale: p.parent.scale,
	}, nil
}

// renderBase precomputes the per-connection frame content: a horizontal
// raw-depth ramp and an RGB gradient. WaitForFrames stamps a frame
// counter on top so consecutive frames differ.
func (p *pipeline) renderBase(width, height int) {
	p.depthBase = make([]byte, 2*width*height)
	p.colorBase = make([]byte, 3*width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var z uint16
			if p.parent.hasRamp {
				span := int(p.parent.rampMax - p.parent.rampMin)
				z = p.parent.rampMin + uint16(x*span/width)
			} else {
				z = p.parent.uniform
			}
			binary.LittleEndian.PutUint16(p.depthBase[2*(y*width+x):], z)

			ci := 3 * (y*width + x)
			p.colorBase[ci] = uint8(x * 255 / width)
			p.colorBase[ci+1] = uint8(y * 255 / height)
			p.colorBase[ci+2] = 128
		}
	}
}

func (p *pipeline) Stop() error {
	return p.state.Update(driver.StateClosed, func() error {
		if p.tick != nil {
			p.tick.Stop()
			p.tick = nil
		}
		p.parent.release(p.serial)
		return nil
	})
}

func (p *pipeline) WaitForFrames(timeout time.Duration) (*driver.FramePair, error) {
	if p.state != driver.StateRunning {
		return nil, fmt.Errorf("synthcam: pipeline is not running")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.tick.C:
	case <-timer.C:
		return nil, fmt.Errorf("synthcam: %w", driver.ErrTimeout)
	}

	cfg := p.streams[driver.StreamColor]
	pair := &driver.FramePair{
		Width:  cfg.Width,
		Height: cfg.Height,
		Depth:  append([]byte(nil), p.depthBase...),
		Color:  append([]byte(nil), p.colorBase...),
	}
	// Stamp the frame counter into the blue channel so frames are
	// distinguishable.
	for i := 2; i < len(pair.Color); i += 3 {
		pair.Color[i] = uint8(p.n)
	}
	p.n++
	return pair, nil
}

func (p *pipeline) Aligner(ref driver.StreamKind) driver.Aligner {
	return alignerFunc(func(pair *driver.FramePair) (*driver.FramePair, error) {
		// Synthetic depth is generated directly in the color grid, so
		// reprojection is the identity.
		return pair, nil
	})
}

type alignerFunc func(*driver.FramePair) (*driver.FramePair, error)

func (f alignerFunc) Align(p *driver.FramePair) (*driver.FramePair, error) { return f(p) }

type profiles struct {
	intrinsics driver.Intrinsics
	scale      float64
}

func (p *profiles) ColorIntrinsics() driver.Intrinsics { return p.intrinsics }
func (p *profiles) DepthScale() float64                { return p.scale }

var _ driver.Driver = (*Synth)(nil)
var _ driver.Pipeline = (*pipeline)(nil)
