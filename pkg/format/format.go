package format

import (
	"fmt"
	"strings"
)

// PixelFormat identifies the memory layout of an image
type PixelFormat int

// Supported pixel formats. NV12 and I420 are full range (BT.601 coefficients).
const (
	Invalid PixelFormat = iota
	U8                  // single channel 8-bit
	RGB8                // 3-channel 8-bit interleaved, R first
	BGR8                // 3-channel 8-bit interleaved, B first
	RGBA8               // 4-channel 8-bit interleaved, R first
	BGRA8               // 4-channel 8-bit interleaved, B first
	NV12                // Y plane + interleaved CbCr plane, 4:2:0
	I420                // Y, Cb and Cr planes, 4:2:0
)

var formatNames = map[PixelFormat]string{
	Invalid: "invalid",
	U8:      "U8",
	RGB8:    "RGB8",
	BGR8:    "BGR8",
	RGBA8:   "RGBA8",
	BGRA8:   "BGRA8",
	NV12:    "NV12",
	I420:    "I420",
}

// All lists every valid pixel format in declaration order
var All = []PixelFormat{U8, RGB8, BGR8, RGBA8, BGRA8, NV12, I420}

// String returns the format tag
func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Parse returns the format for a tag such as "bgr8" (case-insensitive)
func Parse(s string) (PixelFormat, error) {
	for _, f := range All {
		if strings.EqualFold(formatNames[f], s) {
			return f, nil
		}
	}
	return Invalid, fmt.Errorf("unknown pixel format %q", s)
}

// Valid reports whether f is a known format
func (f PixelFormat) Valid() bool {
	return f > Invalid && f <= I420
}

// IsPacked reports whether all channels live interleaved in a single plane
func (f PixelFormat) IsPacked() bool {
	switch f {
	case U8, RGB8, BGR8, RGBA8, BGRA8:
		return true
	}
	return false
}

// IsYUV reports whether f is one of the chroma-subsampled formats
func (f PixelFormat) IsYUV() bool {
	return f == NV12 || f == I420
}

// BytesPerPixel returns the size of one pixel of a packed format, or 0
// for planar formats
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case U8:
		return 1
	case RGB8, BGR8:
		return 3
	case RGBA8, BGRA8:
		return 4
	}
	return 0
}

// Channels returns the number of logical color channels
func (f PixelFormat) Channels() int {
	switch f {
	case U8:
		return 1
	case RGB8, BGR8, NV12, I420:
		return 3
	case RGBA8, BGRA8:
		return 4
	}
	return 0
}

// PlaneInfo describes the geometry of one plane
type PlaneInfo struct {
	Width    int
	Height   int
	Channels int // interleaved bytes per plane element
}

// RowBytes returns the minimum stride for the plane
func (p PlaneInfo) RowBytes() int {
	return p.Width * p.Channels
}

// NumPlanes returns the number of planes of f
func (f PixelFormat) NumPlanes() int {
	switch f {
	case NV12:
		return 2
	case I420:
		return 3
	case Invalid:
		return 0
	}
	if f.IsPacked() {
		return 1
	}
	return 0
}

// Planes returns the per-plane geometry for an image of the given size
func (f PixelFormat) Planes(width, height int) []PlaneInfo {
	cw, ch := (width+1)/2, (height+1)/2
	switch f {
	case NV12:
		return []PlaneInfo{
			{Width: width, Height: height, Channels: 1},
			{Width: cw, Height: ch, Channels: 2},
		}
	case I420:
		return []PlaneInfo{
			{Width: width, Height: height, Channels: 1},
			{Width: cw, Height: ch, Channels: 1},
			{Width: cw, Height: ch, Channels: 1},
		}
	}
	if f.IsPacked() {
		return []PlaneInfo{{Width: width, Height: height, Channels: f.BytesPerPixel()}}
	}
	return nil
}

// Set is a bitset of pixel formats
type Set uint32

// NewSet builds a set from the given formats
func NewSet(formats ...PixelFormat) Set {
	var s Set
	for _, f := range formats {
		s |= 1 << uint(f)
	}
	return s
}

// Has reports whether f is in the set
func (s Set) Has(f PixelFormat) bool {
	return f.Valid() && s&(1<<uint(f)) != 0
}

// Formats returns the members of the set in declaration order
func (s Set) Formats() []PixelFormat {
	var out []PixelFormat
	for _, f := range All {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// String joins the member tags with commas
func (s Set) String() string {
	formats := s.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}
