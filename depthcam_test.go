package depthcam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltaglider/depthcam/pkg/driver"
	"github.com/deltaglider/depthcam/pkg/frame"
)

type logEvent struct {
	level string
	msg   string
}

// captureLogger records events so tests can assert on what was emitted
// rather than on log text formatting.
type captureLogger struct {
	events []logEvent
}

func (l *captureLogger) record(level, msg string) {
	l.events = append(l.events, logEvent{level: level, msg: msg})
}

func (l *captureLogger) Trace(msg string) { l.record("trace", msg) }
func (l *captureLogger) Debug(msg string) { l.record("debug", msg) }
func (l *captureLogger) Info(msg string)  { l.record("info", msg) }
func (l *captureLogger) Warn(msg string)  { l.record("warn", msg) }
func (l *captureLogger) Error(msg string) { l.record("error", msg) }

func (l *captureLogger) Tracef(format string, args ...interface{}) {
	l.record("trace", fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debugf(format string, args ...interface{}) {
	l.record("debug", fmt.Sprintf(format, args...))
}

func (l *captureLogger) Infof(format string, args ...interface{}) {
	l.record("info", fmt.Sprintf(format, args...))
}

func (l *captureLogger) Warnf(format string, args ...interface{}) {
	l.record("warn", fmt.Sprintf(format, args...))
}

func (l *captureLogger) Errorf(format string, args ...interface{}) {
	l.record("error", fmt.Sprintf(format, args...))
}

func (l *captureLogger) byLevel(level string) []string {
	var msgs []string
	for _, e := range l.events {
		if e.level == level {
			msgs = append(msgs, e.msg)
		}
	}
	return msgs
}

type captureFactory struct {
	logger *captureLogger
}

func (f *captureFactory) NewLogger(scope string) logging.LeveledLogger {
	return f.logger
}

type fakeDriver struct {
	devices []driver.Device
	devErr  error
	openErr error
	opened  []string
	pipe    *fakePipeline
}

func (d *fakeDriver) Devices() ([]driver.Device, error) {
	return d.devices, d.devErr
}

func (d *fakeDriver) OpenPipeline(serial string) (driver.Pipeline, error) {
	d.opened = append(d.opened, serial)
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.pipe == nil {
		d.pipe = newFakePipeline()
	}
	return d.pipe, nil
}

type fakePipeline struct {
	enabled  []driver.StreamConfig
	startErr error
	started  int
	stopped  int

	intr  driver.Intrinsics
	scale float64

	waitErrs []error
	pair     *driver.FramePair
	aligned  *driver.FramePair
	aligns   int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		intr:  driver.Intrinsics{Fx: 615, Fy: 615, Ppx: 320, Ppy: 240, Width: 640, Height: 480, Model: "brown_conrady"},
		scale: 0.001,
		pair:  uniformPair(4, 3, 2000),
	}
}

func (p *fakePipeline) EnableStream(s driver.StreamConfig) error {
	p.enabled = append(p.enabled, s)
	return nil
}

func (p *fakePipeline) Start() (driver.StreamProfiles, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.started++
	return p, nil
}

func (p *fakePipeline) Stop() error {
	p.stopped++
	return nil
}

func (p *fakePipeline) WaitForFrames(timeout time.Duration) (*driver.FramePair, error) {
	if len(p.waitErrs) > 0 {
		err := p.waitErrs[0]
		p.waitErrs = p.waitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return p.pair, nil
}

func (p *fakePipeline) Aligner(ref driver.StreamKind) driver.Aligner {
	return alignerFunc(func(pair *driver.FramePair) (*driver.FramePair, error) {
		p.aligns++
		if p.aligned != nil {
			return p.aligned, nil
		}
		return pair, nil
	})
}

func (p *fakePipeline) ColorIntrinsics() driver.Intrinsics { return p.intr }
func (p *fakePipeline) DepthScale() float64                { return p.scale }

type alignerFunc func(*driver.FramePair) (*driver.FramePair, error)

func (f alignerFunc) Align(p *driver.FramePair) (*driver.FramePair, error) { return f(p) }

func uniformPair(width, height int, raw uint16) *driver.FramePair {
	depth := make([]byte, 2*width*height)
	for i := 0; i < width*height; i++ {
		binary.LittleEndian.PutUint16(depth[2*i:], raw)
	}
	color := make([]byte, 3*width*height)
	for i := range color {
		color[i] = uint8(i)
	}
	return &driver.FramePair{Width: width, Height: height, Depth: depth, Color: color}
}

func newTestCamera(t *testing.T, config Config, fd *fakeDriver) (*Camera, *captureLogger) {
	t.Helper()
	logger := &captureLogger{}
	cam := New(config, WithDriver(fd), WithLoggerFactory(&captureFactory{logger: logger}))
	return cam, logger
}

func TestConnectSelectsFirstAvailableWhenUnset(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, logger := newTestCamera(t, Config{Width: 640, Height: 480, FPS: 30}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	assert.Equal(t, []string{"111"}, fd.opened)
	assert.Empty(t, logger.byLevel("warn"))
	infos := logger.byLevel("info")
	require.NotEmpty(t, infos)
	assert.Contains(t, infos[0], "111")
}

func TestConnectSelectsRequestedSerial(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{
		{Serial: "111", Name: "D405"},
		{Serial: "222", Name: "D435"},
	}}
	cam, logger := newTestCamera(t, Config{DeviceID: "222"}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	assert.Equal(t, []string{"222"}, fd.opened)
	assert.Empty(t, logger.byLevel("warn"))
}

func TestConnectFallsBackOnMismatch(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, logger := newTestCamera(t, Config{DeviceID: "999"}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	assert.Equal(t, []string{"111"}, fd.opened)

	warns := logger.byLevel("warn")
	require.Len(t, warns, 1, "mismatch must emit exactly one warning")
	assert.Contains(t, warns[0], "999")
	assert.Contains(t, warns[0], "111")
}

func TestConnectNoDevices(t *testing.T) {
	fd := &fakeDriver{}
	cam, _ := newTestCamera(t, Config{}, fd)

	err := cam.Connect()
	require.ErrorIs(t, err, ErrNoDeviceFound)
	assert.Empty(t, fd.opened, "no pipeline may be opened without a device")
}

func TestConnectConfiguresBothStreams(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{Width: 848, Height: 480, FPS: 60}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	want := []driver.StreamConfig{
		{Kind: driver.StreamDepth, Width: 848, Height: 480, FPS: 60, Format: frame.FormatZ16},
		{Kind: driver.StreamColor, Width: 848, Height: 480, FPS: 60, Format: frame.FormatRGB8},
	}
	if diff := cmp.Diff(want, fd.pipe.enabled); diff != "" {
		t.Errorf("enabled streams mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectDefaultsConfig(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	require.Len(t, fd.pipe.enabled, 2)
	for _, s := range fd.pipe.enabled {
		assert.Equal(t, 640, s.Width)
		assert.Equal(t, 480, s.Height)
		assert.Equal(t, 30, s.FPS)
	}
}

func TestConnectStartFailure(t *testing.T) {
	startErr := errors.New("device busy")
	fd := &fakeDriver{
		devices: []driver.Device{{Serial: "111", Name: "D405"}},
		pipe:    newFakePipeline(),
	}
	fd.pipe.startErr = startErr
	cam, _ := newTestCamera(t, Config{}, fd)

	err := cam.Connect()
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "111", ce.Serial)
	assert.ErrorIs(t, err, startErr)
	assert.Equal(t, 1, fd.pipe.stopped, "failed connect must release the pipeline")

	_, err = cam.Acquire()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectTwice(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{}, fd)

	require.NoError(t, cam.Connect())
	defer cam.Close()

	err := cam.Connect()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already connected"))
}

func TestCalibrationCapturedOnce(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{}, fd)

	_, err := cam.Intrinsics()
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = cam.DepthScale()
	require.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, cam.Connect())

	scale, err := cam.DepthScale()
	require.NoError(t, err)
	assert.Equal(t, fd.pipe.scale, scale, "recorded scale must equal the driver-reported scale")

	intr, err := cam.Intrinsics()
	require.NoError(t, err)
	if diff := cmp.Diff(fd.pipe.intr, intr); diff != "" {
		t.Errorf("intrinsics mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, cam.Close())
	_, err = cam.DepthScale()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{}, fd)

	require.NoError(t, cam.Close(), "close before connect is a no-op")

	require.NoError(t, cam.Connect())
	require.NoError(t, cam.Close())
	require.NoError(t, cam.Close())
	assert.Equal(t, 1, fd.pipe.stopped)
}

func TestDevicesNotCached(t *testing.T) {
	fd := &fakeDriver{devices: []driver.Device{{Serial: "111", Name: "D405"}}}
	cam, _ := newTestCamera(t, Config{}, fd)

	devs, err := cam.Devices()
	require.NoError(t, err)
	assert.Equal(t, []DeviceInfo{{Serial: "111", Name: "D405"}}, devs)

	fd.devices = append(fd.devices, driver.Device{Serial: "222", Name: "D435"})
	devs, err = cam.Devices()
	require.NoError(t, err)
	assert.Len(t, devs, 2, "enumeration must re-query the driver on every call")
}

func TestDevicesEmpty(t *testing.T) {
	fd := &fakeDriver{}
	cam, _ := newTestCamera(t, Config{}, fd)

	devs, err := cam.Devices()
	require.NoError(t, err, "an empty device set is not an error")
	assert.Empty(t, devs)
}
