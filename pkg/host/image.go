// Package host defines the caller-owned images passed to and returned
// by the pipeline.
package host

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Validation errors
var (
	ErrNilStorage     = errors.New("image has no storage")
	ErrBadDimensions  = errors.New("image dimensions must be positive")
	ErrStrideTooSmall = errors.New("stride is smaller than a row")
	ErrShortStorage   = errors.New("storage is smaller than the image")
	ErrNotPacked      = errors.New("host images must use a packed single-plane format")
)

// Image is a rectangular, row-major, interleaved 8-bit image in memory
// owned by the caller. Row y starts at Data[y*Stride].
type Image struct {
	Width  int
	Height int
	Stride int
	Format format.PixelFormat
	Data   []byte
}

// New allocates a tightly packed image
func New(width, height int, f format.PixelFormat) (*Image, error) {
	if !f.IsPacked() {
		return nil, fmt.Errorf("%w: %v", ErrNotPacked, f)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	stride := width * f.BytesPerPixel()
	return &Image{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: f,
		Data:   make([]byte, stride*height),
	}, nil
}

// RowBytes returns the number of meaningful bytes in each row
func (m *Image) RowBytes() int {
	return m.Width * m.Format.BytesPerPixel()
}

// Validate checks the geometry against the storage
func (m *Image) Validate() error {
	if m == nil || len(m.Data) == 0 {
		return ErrNilStorage
	}
	if !m.Format.IsPacked() {
		return fmt.Errorf("%w: %v", ErrNotPacked, m.Format)
	}
	if m.Width <= 0 || m.Height <= 0 || m.Stride <= 0 {
		return fmt.Errorf("%w: %dx%d stride %d", ErrBadDimensions, m.Width, m.Height, m.Stride)
	}
	// compare by division so oversized geometry cannot overflow
	if m.Width > len(m.Data)/m.Format.BytesPerPixel() {
		return fmt.Errorf("%w: have %d bytes for width %d", ErrShortStorage, len(m.Data), m.Width)
	}
	rowBytes := m.RowBytes()
	if m.Stride < rowBytes {
		return fmt.Errorf("%w: stride %d, row %d", ErrStrideTooSmall, m.Stride, rowBytes)
	}
	if m.Height-1 > (len(m.Data)-rowBytes)/m.Stride {
		return fmt.Errorf("%w: have %d bytes for %d rows of stride %d", ErrShortStorage, len(m.Data), m.Height, m.Stride)
	}
	return nil
}

// Row returns the meaningful bytes of row y
func (m *Image) Row(y int) []byte {
	start := y * m.Stride
	return m.Data[start : start+m.RowBytes()]
}

// ImageData describes the image as device-wrappable memory. The planes
// alias m.Data.
func (m *Image) ImageData() driver.ImageData {
	return driver.ImageData{
		Format: m.Format,
		Width:  m.Width,
		Height: m.Height,
		Planes: []driver.Plane{{
			Width:  m.Width,
			Height: m.Height,
			Stride: m.Stride,
			Data:   m.Data,
		}},
	}
}

// FromImage converts any image.Image to a packed host image in format f
func FromImage(src image.Image, f format.PixelFormat) (*Image, error) {
	b := src.Bounds()
	dst, err := New(b.Dx(), b.Dy(), f)
	if err != nil {
		return nil, err
	}

	switch f {
	case format.U8:
		gray := &image.Gray{Pix: dst.Data, Stride: dst.Stride, Rect: image.Rect(0, 0, dst.Width, dst.Height)}
		draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	case format.RGBA8:
		rgba := &image.NRGBA{Pix: dst.Data, Stride: dst.Stride, Rect: image.Rect(0, 0, dst.Width, dst.Height)}
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, dst.Width, dst.Height))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)

	bpp := f.BytesPerPixel()
	swap := f == format.BGR8 || f == format.BGRA8
	for y := 0; y < dst.Height; y++ {
		in := rgba.Pix[y*rgba.Stride:]
		out := dst.Row(y)
		for x := 0; x < dst.Width; x++ {
			r, g, b, a := in[x*4], in[x*4+1], in[x*4+2], in[x*4+3]
			if swap {
				r, b = b, r
			}
			out[x*bpp], out[x*bpp+1], out[x*bpp+2] = r, g, b
			if bpp == 4 {
				out[x*bpp+3] = a
			}
		}
	}
	return dst, nil
}

// ToImage converts the host image to an image.Image. U8 becomes
// *image.Gray, every other format *image.NRGBA.
func (m *Image) ToImage() (image.Image, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, m.Width, m.Height)
	if m.Format == format.U8 {
		gray := image.NewGray(rect)
		for y := 0; y < m.Height; y++ {
			copy(gray.Pix[y*gray.Stride:], m.Row(y))
		}
		return gray, nil
	}

	out := image.NewNRGBA(rect)
	bpp := m.Format.BytesPerPixel()
	swap := m.Format == format.BGR8 || m.Format == format.BGRA8
	for y := 0; y < m.Height; y++ {
		row := m.Row(y)
		for x := 0; x < m.Width; x++ {
			px := row[x*bpp:]
			c := color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255}
			if swap {
				c.R, c.B = c.B, c.R
			}
			if bpp == 4 {
				c.A = px[3]
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

// Equal reports whether two images have the same geometry, format and
// pixels. Stride padding is ignored.
func Equal(a, b *Image) bool {
	if a.Width != b.Width || a.Height != b.Height || a.Format != b.Format {
		return false
	}
	for y := 0; y < a.Height; y++ {
		ra, rb := a.Row(y), b.Row(y)
		for i := range ra {
			if ra[i] != rb[i] {
				return false
			}
		}
	}
	return true
}
