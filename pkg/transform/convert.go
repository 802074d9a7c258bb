package transform

import (
	"errors"
	"fmt"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Errors for transform kernels
var (
	ErrSizeMismatch      = errors.New("image sizes differ")
	ErrFormatMismatch    = errors.New("image formats differ")
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrUnsupportedKernel = errors.New("unsupported interpolation and border combination")
)

// Convert writes src into dst, converting from src.Format to dst.Format.
// Both images must have the same size. Converting to the same format is
// an exact copy.
func Convert(src, dst driver.ImageData) error {
	if src.Width != dst.Width || src.Height != dst.Height {
		return fmt.Errorf("%w: %dx%d -> %dx%d", ErrSizeMismatch, src.Width, src.Height, dst.Width, dst.Height)
	}

	switch {
	case src.Format == dst.Format:
		for i, info := range src.Format.Planes(src.Width, src.Height) {
			CopyPlane(src.Planes[i], dst.Planes[i], info.RowBytes())
		}
		return nil
	case src.Format.IsPacked() && dst.Format.IsPacked():
		convertPacked(src, dst)
		return nil
	case src.Format.IsPacked() && dst.Format.IsYUV():
		packedToYUV(src, dst)
		return nil
	case src.Format.IsYUV() && dst.Format.IsPacked():
		yuvToPacked(src, dst)
		return nil
	case src.Format.IsYUV() && dst.Format.IsYUV():
		yuvToYUV(src, dst)
		return nil
	}
	return fmt.Errorf("%w: %v -> %v", ErrUnsupportedFormat, src.Format, dst.Format)
}

// CopyPlane copies rowBytes of every row, honouring both strides
func CopyPlane(src, dst driver.Plane, rowBytes int) {
	for y := 0; y < src.Height; y++ {
		copy(dst.Data[y*dst.Stride:y*dst.Stride+rowBytes], src.Data[y*src.Stride:y*src.Stride+rowBytes])
	}
}

// SwapRB swaps the first and third channel of every pixel in a row
func SwapRB(src, dst []uint8, width, channels int) {
	for i := 0; i < width; i++ {
		o := i * channels
		dst[o] = src[o+2]   // R (was B)
		dst[o+1] = src[o+1] // G
		dst[o+2] = src[o]   // B (was R)
		if channels == 4 {
			dst[o+3] = src[o+3]
		}
	}
}

func convertPacked(src, dst driver.ImageData) {
	sl, dl := layouts[src.Format], layouts[dst.Format]
	sp, dp := src.Planes[0], dst.Planes[0]

	// RGB <-> BGR and RGBA <-> BGRA only reorder channels
	if sl.bpp == dl.bpp && !sl.gray && !dl.gray {
		for y := 0; y < src.Height; y++ {
			SwapRB(sp.Data[y*sp.Stride:], dp.Data[y*dp.Stride:], src.Width, sl.bpp)
		}
		return
	}

	for y := 0; y < src.Height; y++ {
		srow := sp.Data[y*sp.Stride:]
		drow := dp.Data[y*dp.Stride:]
		for x := 0; x < src.Width; x++ {
			r, g, b, a := sl.read(srow[x*sl.bpp:])
			dl.write(drow[x*dl.bpp:], r, g, b, a)
		}
	}
}

// chroma addresses the Cb and Cr samples of a 4:2:0 image
type chroma struct {
	data driver.ImageData
}

func (c chroma) get(cx, cy int) (cb, cr uint8) {
	if c.data.Format == format.NV12 {
		p := c.data.Planes[1]
		o := cy*p.Stride + cx*2
		return p.Data[o], p.Data[o+1]
	}
	u, v := c.data.Planes[1], c.data.Planes[2]
	return u.Data[cy*u.Stride+cx], v.Data[cy*v.Stride+cx]
}

func (c chroma) set(cx, cy int, cb, cr uint8) {
	if c.data.Format == format.NV12 {
		p := c.data.Planes[1]
		o := cy*p.Stride + cx*2
		p.Data[o], p.Data[o+1] = cb, cr
		return
	}
	u, v := c.data.Planes[1], c.data.Planes[2]
	u.Data[cy*u.Stride+cx] = cb
	v.Data[cy*v.Stride+cx] = cr
}

func packedToYUV(src, dst driver.ImageData) {
	sl := layouts[src.Format]
	sp := src.Planes[0]
	yp := dst.Planes[0]

	for y := 0; y < src.Height; y++ {
		srow := sp.Data[y*sp.Stride:]
		for x := 0; x < src.Width; x++ {
			r, g, b, _ := sl.read(srow[x*sl.bpp:])
			yp.Data[y*yp.Stride+x] = clampRound(luma(r, g, b))
		}
	}

	// Each chroma sample is the mean of the 2x2 block it covers
	c := chroma{data: dst}
	cw, ch := (src.Width+1)/2, (src.Height+1)/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var sumCb, sumCr float64
			n := 0
			for y := cy * 2; y < cy*2+2 && y < src.Height; y++ {
				for x := cx * 2; x < cx*2+2 && x < src.Width; x++ {
					r, g, b, _ := sl.read(sp.Data[y*sp.Stride+x*sl.bpp:])
					_, cb, cr := rgbToYCbCr(r, g, b)
					sumCb += cb
					sumCr += cr
					n++
				}
			}
			c.set(cx, cy, clampRound(sumCb/float64(n)), clampRound(sumCr/float64(n)))
		}
	}
}

func yuvToPacked(src, dst driver.ImageData) {
	dl := layouts[dst.Format]
	yp := src.Planes[0]
	dp := dst.Planes[0]

	if dl.gray {
		CopyPlane(yp, dp, src.Width)
		return
	}

	c := chroma{data: src}
	for y := 0; y < src.Height; y++ {
		drow := dp.Data[y*dp.Stride:]
		for x := 0; x < src.Width; x++ {
			cb, cr := c.get(x/2, y/2)
			r, g, b := yCbCrToRGB(yp.Data[y*yp.Stride+x], cb, cr)
			dl.write(drow[x*dl.bpp:], r, g, b, 255)
		}
	}
}

func yuvToYUV(src, dst driver.ImageData) {
	CopyPlane(src.Planes[0], dst.Planes[0], src.Width)

	sc, dc := chroma{data: src}, chroma{data: dst}
	cw, ch := (src.Width+1)/2, (src.Height+1)/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			cb, cr := sc.get(cx, cy)
			dc.set(cx, cy, cb, cr)
		}
	}
}
