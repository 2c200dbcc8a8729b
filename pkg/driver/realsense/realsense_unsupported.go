//go:build !((linux || darwin) && cgo)

package realsense

// The librealsense2 binding needs cgo on linux or darwin. On other
// platforms this package compiles to nothing and registers no driver.
