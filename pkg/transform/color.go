package transform

import (
	"math"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Full range BT.601 coefficients
const (
	kr = 0.299
	kg = 0.587
	kb = 0.114
)

// clampRound rounds v to the nearest integer and clamps it to [0, 255]
func clampRound(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// luma returns the unrounded full range luma of an RGB triple
func luma(r, g, b uint8) float64 {
	return kr*float64(r) + kg*float64(g) + kb*float64(b)
}

// rgbToYCbCr returns unrounded full range Y, Cb and Cr
func rgbToYCbCr(r, g, b uint8) (y, cb, cr float64) {
	y = luma(r, g, b)
	cb = 128 + (float64(b)-y)/(2*(1-kb))
	cr = 128 + (float64(r)-y)/(2*(1-kr))
	return y, cb, cr
}

// yCbCrToRGB inverts rgbToYCbCr
func yCbCrToRGB(y, cb, cr uint8) (r, g, b uint8) {
	fy := float64(y)
	fcb := float64(cb) - 128
	fcr := float64(cr) - 128

	fr := fy + 2*(1-kr)*fcr
	fb := fy + 2*(1-kb)*fcb
	fg := (fy - kr*fr - kb*fb) / kg

	return clampRound(fr), clampRound(fg), clampRound(fb)
}

// layout maps a packed format to its channel offsets. A negative alpha
// offset means the format carries no alpha.
type layout struct {
	bpp     int
	r, g, b int
	a       int
	gray    bool
}

var layouts = map[format.PixelFormat]layout{
	format.U8:    {bpp: 1, r: 0, g: 0, b: 0, a: -1, gray: true},
	format.RGB8:  {bpp: 3, r: 0, g: 1, b: 2, a: -1},
	format.BGR8:  {bpp: 3, r: 2, g: 1, b: 0, a: -1},
	format.RGBA8: {bpp: 4, r: 0, g: 1, b: 2, a: 3},
	format.BGRA8: {bpp: 4, r: 2, g: 1, b: 0, a: 3},
}

func (l layout) read(px []uint8) (r, g, b, a uint8) {
	a = 255
	if l.a >= 0 {
		a = px[l.a]
	}
	return px[l.r], px[l.g], px[l.b], a
}

func (l layout) write(px []uint8, r, g, b, a uint8) {
	if l.gray {
		px[0] = clampRound(luma(r, g, b))
		return
	}
	px[l.r] = r
	px[l.g] = g
	px[l.b] = b
	if l.a >= 0 {
		px[l.a] = a
	}
}
