//go:build (linux || darwin) && cgo

// Package realsense binds the depthcam driver boundary to the Intel
// librealsense2 SDK.
package realsense

/*
#cgo linux darwin LDFLAGS: -L/usr/local/lib/ -lrealsense2
#cgo CPPFLAGS: -I/usr/local/include
#include <librealsense2/rs.h>
#include <librealsense2/h/rs_pipeline.h>
#include <librealsense2/h/rs_processing.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/deltaglider/depthcam/pkg/driver"
	"github.com/deltaglider/depthcam/pkg/frame"
)

// DriverName is the name this package registers under.
const DriverName = "realsense"

func init() {
	driver.Register(DriverName, func() (driver.Driver, error) {
		return newRealsense()
	})
}

type realsense struct {
	ctx *C.rs2_context
}

func newRealsense() (*realsense, error) {
	var errc *C.rs2_error
	ctx := C.rs2_create_context(C.RS2_API_VERSION, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	return &realsense{ctx: ctx}, nil
}

// Devices queries the SDK context on every call; attach/detach between
// calls is reflected in the result.
func (r *realsense) Devices() ([]driver.Device, error) {
	var errc *C.rs2_error
	list := C.rs2_query_devices(r.ctx, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	defer C.rs2_delete_device_list(list)

	count := C.rs2_get_device_count(list, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}

	devices := make([]driver.Device, 0, int(count))
	for i := 0; i < int(count); i++ {
		dev := C.rs2_create_device(list, C.int(i), &errc)
		if errc != nil {
			return nil, errorFrom(errc)
		}
		serial := C.GoString(C.rs2_get_device_info(dev, C.RS2_CAMERA_INFO_SERIAL_NUMBER, &errc))
		name := C.GoString(C.rs2_get_device_info(dev, C.RS2_CAMERA_INFO_NAME, &errc))
		C.rs2_delete_device(dev)
		if errc != nil {
			return nil, errorFrom(errc)
		}
		devices = append(devices, driver.Device{Serial: serial, Name: name})
	}
	return devices, nil
}

func (r *realsense) OpenPipeline(serial string) (driver.Pipeline, error) {
	var errc *C.rs2_error
	conf := C.rs2_create_config(&errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}

	cs := C.CString(serial)
	C.rs2_config_enable_device(conf, cs, &errc)
	C.free(unsafe.Pointer(cs))
	if errc != nil {
		C.rs2_delete_config(conf)
		return nil, errorFrom(errc)
	}

	p := C.rs2_create_pipeline(r.ctx, &errc)
	if errc != nil {
		C.rs2_delete_config(conf)
		return nil, errorFrom(errc)
	}

	return &pipeline{p: p, conf: conf}, nil
}

type pipeline struct {
	p       *C.rs2_pipeline
	conf    *C.rs2_config
	profile *C.rs2_pipeline_profile
}

func (p *pipeline) EnableStream(s driver.StreamConfig) error {
	var stream C.rs2_stream
	var format C.rs2_format
	switch s.Kind {
	case driver.StreamDepth:
		stream = C.RS2_STREAM_DEPTH
		format = C.RS2_FORMAT_Z16
	case driver.StreamColor:
		stream = C.RS2_STREAM_COLOR
		format = C.RS2_FORMAT_RGB8
	default:
		return fmt.Errorf("realsense: unknown stream kind %q", s.Kind)
	}
	if s.Format != "" {
		if (s.Kind == driver.StreamDepth && s.Format != frame.FormatZ16) ||
			(s.Kind == driver.StreamColor && s.Format != frame.FormatRGB8) {
			return fmt.Errorf("realsense: unsupported %s format %q", s.Kind, s.Format)
		}
	}

	var errc *C.rs2_error
	C.rs2_config_enable_stream(p.conf, stream, 0,
		C.int(s.Width), C.int(s.Height), format, C.int(s.FPS), &errc)
	if errc != nil {
		return errorFrom(errc)
	}
	return nil
}

func (p *pipeline) Start() (driver.StreamProfiles, error) {
	var errc *C.rs2_error
	prof := C.rs2_pipeline_start_with_config(p.p, p.conf, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	p.profile = prof

	intr, err := p.colorIntrinsics()
	if err != nil {
		return nil, err
	}
	scale, err := p.depthScale()
	if err != nil {
		return nil, err
	}
	return &profiles{intrinsics: intr, scale: scale}, nil
}

func (p *pipeline) colorIntrinsics() (driver.Intrinsics, error) {
	var errc *C.rs2_error
	list := C.rs2_pipeline_profile_get_streams(p.profile, &errc)
	if errc != nil {
		return driver.Intrinsics{}, errorFrom(errc)
	}
	defer C.rs2_delete_stream_profiles_list(list)

	count := C.rs2_get_stream_profiles_count(list, &errc)
	if errc != nil {
		return driver.Intrinsics{}, errorFrom(errc)
	}

	for i := 0; i < int(count); i++ {
		sp := C.rs2_get_stream_profile(list, C.int(i), &errc)
		if errc != nil {
			return driver.Intrinsics{}, errorFrom(errc)
		}

		var stream C.rs2_stream
		var format C.rs2_format
		var index, uniqueID, framerate C.int
		C.rs2_get_stream_profile_data(sp, &stream, &format, &index, &uniqueID, &framerate, &errc)
		if errc != nil {
			return driver.Intrinsics{}, errorFrom(errc)
		}
		if stream != C.RS2_STREAM_COLOR {
			continue
		}

		var ci C.rs2_intrinsics
		C.rs2_get_video_stream_intrinsics(sp, &ci, &errc)
		if errc != nil {
			return driver.Intrinsics{}, errorFrom(errc)
		}
		intr := driver.Intrinsics{
			Fx:     float64(ci.fx),
			Fy:     float64(ci.fy),
			Ppx:    float64(ci.ppx),
			Ppy:    float64(ci.ppy),
			Width:  int(ci.width),
			Height: int(ci.height),
			Model:  C.GoString(C.rs2_distortion_to_string(ci.model)),
		}
		for j := 0; j < len(intr.Coeffs); j++ {
			intr.Coeffs[j] = float64(ci.coeffs[j])
		}
		return intr, nil
	}
	return driver.Intrinsics{}, fmt.Errorf("realsense: no color stream in active profile")
}

func (p *pipeline) depthScale() (float64, error) {
	var errc *C.rs2_error
	dev := C.rs2_pipeline_profile_get_device(p.profile, &errc)
	if errc != nil {
		return 0, errorFrom(errc)
	}
	defer C.rs2_delete_device(dev)

	sensors := C.rs2_query_sensors(dev, &errc)
	if errc != nil {
		return 0, errorFrom(errc)
	}
	defer C.rs2_delete_sensor_list(sensors)

	count := C.rs2_get_sensors_count(sensors, &errc)
	if errc != nil {
		return 0, errorFrom(errc)
	}

	for i := 0; i < int(count); i++ {
		sensor := C.rs2_create_sensor(sensors, C.int(i), &errc)
		if errc != nil {
			return 0, errorFrom(errc)
		}
		isDepth := C.rs2_is_sensor_extendable_to(sensor, C.RS2_EXTENSION_DEPTH_SENSOR, &errc)
		if errc == nil && isDepth != 0 {
			scale := C.rs2_get_depth_scale(sensor, &errc)
			C.rs2_delete_sensor(sensor)
			if errc != nil {
				return 0, errorFrom(errc)
			}
			return float64(scale), nil
		}
		C.rs2_delete_sensor(sensor)
		if errc != nil {
			return 0, errorFrom(errc)
		}
	}
	return 0, fmt.Errorf("realsense: no depth sensor on active device")
}

func (p *pipeline) Stop() error {
	var errc *C.rs2_error
	if p.profile != nil {
		C.rs2_pipeline_stop(p.p, &errc)
		C.rs2_delete_pipeline_profile(p.profile)
		p.profile = nil
		if errc != nil {
			return errorFrom(errc)
		}
	}
	C.rs2_delete_config(p.conf)
	C.rs2_delete_pipeline(p.p)
	return nil
}

// WaitForFrames returns the SDK composite frame as FramePair.Native;
// buffer extraction is deferred to the Aligner, which reprojects and
// copies in one pass.
func (p *pipeline) WaitForFrames(timeout time.Duration) (*driver.FramePair, error) {
	var errc *C.rs2_error
	frames := C.rs2_pipeline_wait_for_frames(p.p, C.uint(timeout.Milliseconds()), &errc)
	if errc != nil {
		// An expired wait raises a generic exception; anything the SDK
		// can classify (disconnect, backend, IO) is a real device
		// failure and must not look like a retryable timeout.
		kind := C.rs2_get_librealsense_exception_type(errc)
		if kind == C.RS2_EXCEPTION_TYPE_UNKNOWN {
			return nil, fmt.Errorf("%w: %s", driver.ErrTimeout, errorFrom(errc))
		}
		return nil, fmt.Errorf("realsense: %s: %w",
			C.GoString(C.rs2_exception_type_to_string(kind)), errorFrom(errc))
	}
	return &driver.FramePair{Native: frames}, nil
}

func (p *pipeline) Aligner(ref driver.StreamKind) driver.Aligner {
	var stream C.rs2_stream
	switch ref {
	case driver.StreamColor:
		stream = C.RS2_STREAM_COLOR
	case driver.StreamDepth:
		stream = C.RS2_STREAM_DEPTH
	}
	return &aligner{to: stream}
}

type aligner struct {
	to    C.rs2_stream
	block *C.rs2_processing_block
	queue *C.rs2_frame_queue
}

func (a *aligner) init() error {
	if a.block != nil {
		return nil
	}
	var errc *C.rs2_error
	a.block = C.rs2_create_align(a.to, &errc)
	if errc != nil {
		return errorFrom(errc)
	}
	a.queue = C.rs2_create_frame_queue(1, &errc)
	if errc != nil {
		return errorFrom(errc)
	}
	C.rs2_start_processing_queue(a.block, a.queue, &errc)
	if errc != nil {
		return errorFrom(errc)
	}
	return nil
}

func (a *aligner) Align(pair *driver.FramePair) (*driver.FramePair, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	composite, ok := pair.Native.(*C.rs2_frame)
	if !ok {
		return nil, fmt.Errorf("realsense: frame pair has no native composite")
	}
	var errc *C.rs2_error
	// rs2_process_frame consumes the composite's reference; it must not
	// be released here as well.
	C.rs2_process_frame(a.block, composite, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	aligned := C.rs2_wait_for_frame(a.queue, C.uint(1000), &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	defer C.rs2_release_frame(aligned)

	out := &driver.FramePair{}
	count := C.rs2_embedded_frames_count(aligned, &errc)
	if errc != nil {
		return nil, errorFrom(errc)
	}
	for i := 0; i < int(count); i++ {
		f := C.rs2_extract_frame(aligned, C.int(i), &errc)
		if errc != nil {
			return nil, errorFrom(errc)
		}

		w := int(C.rs2_get_frame_width(f, &errc))
		h := int(C.rs2_get_frame_height(f, &errc))
		data := C.rs2_get_frame_data(f, &errc)
		if errc != nil {
			C.rs2_release_frame(f)
			return nil, errorFrom(errc)
		}

		if C.rs2_is_frame_extendable_to(f, C.RS2_EXTENSION_DEPTH_FRAME, &errc) != 0 {
			out.Depth = C.GoBytes(unsafe.Pointer(data), C.int(2*w*h))
		} else {
			out.Color = C.GoBytes(unsafe.Pointer(data), C.int(3*w*h))
			out.Width = w
			out.Height = h
		}
		C.rs2_release_frame(f)
	}
	return out, nil
}

type profiles struct {
	intrinsics driver.Intrinsics
	scale      float64
}

func (p *profiles) ColorIntrinsics() driver.Intrinsics { return p.intrinsics }
func (p *profiles) DepthScale() float64                { return p.scale }

func errorFrom(errc *C.rs2_error) error {
	if errc == nil {
		return nil
	}
	defer C.rs2_free_error(errc)
	return fmt.Errorf("%s", C.GoString(C.rs2_get_error_message(errc)))
}
