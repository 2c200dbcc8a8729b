package frame

import (
	"fmt"
	"image"
	"image/color"
)

// RGB8Img is a packed 24-bit RGB image.
type RGB8Img struct {
	// Pix holds the image's pixels, in R, G, B order. The pixel at
	// (x, y) starts at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*3].
	Pix    []uint8
	Rect   image.Rectangle
	Stride int
}

// DecodeRGB8 copies a raw RGB8 buffer into a new image. Drivers may
// reuse their delivery buffers between frames, so the pixels are never
// aliased to raw.
func DecodeRGB8(raw []byte, width, height int) (*RGB8Img, error) {
	expectedSize := 3 * width * height
	if expectedSize != len(raw) {
		return nil, fmt.Errorf("frame length (%d) not expected size (%d)", len(raw), expectedSize)
	}
	pix := make([]uint8, len(raw))
	copy(pix, raw)
	return &RGB8Img{
		Pix:    pix,
		Rect:   image.Rect(0, 0, width, height),
		Stride: width * 3,
	}, nil
}

func (p *RGB8Img) ColorModel() color.Model {
	return color.RGBAModel
}

func (p *RGB8Img) Bounds() image.Rectangle {
	return p.Rect
}

func (p *RGB8Img) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

func (p *RGB8Img) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3] // Small capacity improves performance, see https://golang.org/issue/27857
	return color.RGBA{s[0], s[1], s[2], 0xff}
}
