package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

var interpolators = map[driver.Interp]draw.Interpolator{
	driver.InterpNearest:    draw.NearestNeighbor,
	driver.InterpLinear:     draw.BiLinear,
	driver.InterpCatmullRom: draw.CatmullRom,
}

// Rescale resamples src into dst. Both images must share a format; each
// plane is scaled to the geometry of the corresponding dst plane, one
// goroutine per channel.
func Rescale(src, dst driver.ImageData, interp driver.Interp, border driver.Border) error {
	if src.Format != dst.Format {
		return fmt.Errorf("%w: %v -> %v", ErrFormatMismatch, src.Format, dst.Format)
	}
	if border == driver.BorderZero && interp != driver.InterpNearest && interp != driver.InterpLinear {
		return fmt.Errorf("%w: %v with %v border", ErrUnsupportedKernel, interp, border)
	}
	if _, ok := interpolators[interp]; !ok && interp != driver.InterpLanczos3 {
		return fmt.Errorf("%w: %v", ErrUnsupportedKernel, interp)
	}

	srcPlanes := src.Format.Planes(src.Width, src.Height)
	dstPlanes := dst.Format.Planes(dst.Width, dst.Height)
	if len(srcPlanes) == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, src.Format)
	}

	var g errgroup.Group
	for i, info := range srcPlanes {
		i, info := i, info
		for c := 0; c < info.Channels; c++ {
			c := c
			g.Go(func() error {
				gray := extractChannel(src.Planes[i], info.Width, info.Height, info.Channels, c)
				scaled := scaleGray(gray, dstPlanes[i].Width, dstPlanes[i].Height, interp, border, borderValue(src.Format, i))
				insertChannel(scaled, dst.Planes[i], info.Channels, c)
				return nil
			})
		}
	}
	return g.Wait()
}

// borderValue is the sample a zero border contributes to plane i. Chroma
// planes pad with the neutral value so edges fade to black, not green.
func borderValue(f format.PixelFormat, plane int) uint8 {
	if f.IsYUV() && plane > 0 {
		return 128
	}
	return 0
}

// extractChannel copies one interleaved channel of a plane into a gray image
func extractChannel(p driver.Plane, width, height, channels, c int) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := p.Data[y*p.Stride:]
		out := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			out[x] = row[x*channels+c]
		}
	}
	return gray
}

// insertChannel writes a gray image into one interleaved channel of a plane
func insertChannel(gray *image.Gray, p driver.Plane, channels, c int) {
	b := gray.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := p.Data[y*p.Stride:]
		in := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			row[x*channels+c] = in[x]
		}
	}
}

func scaleGray(src *image.Gray, width, height int, interp driver.Interp, border driver.Border, pad uint8) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))

	switch {
	case interp == driver.InterpLinear && border == driver.BorderZero:
		ResizeBilinearZero(src, dst, pad)
	case interp == driver.InterpLanczos3:
		out := resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
		draw.Draw(dst, dst.Bounds(), out, out.Bounds().Min, draw.Src)
	default:
		// x/image kernels clamp samples to the source rectangle
		interpolators[interp].Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return dst
}

// ResizeBilinearZero resizes using bilinear interpolation with pixel
// centers aligned; samples outside src contribute pad
func ResizeBilinearZero(src, dst *image.Gray, pad uint8) {
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	dstW, dstH := dst.Bounds().Dx(), dst.Bounds().Dy()

	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	sample := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= srcW || y >= srcH {
			return float64(pad)
		}
		return float64(src.Pix[y*src.Stride+x])
	}

	for y := 0; y < dstH; y++ {
		srcY := (float64(y)+0.5)*yRatio - 0.5
		y0 := int(math.Floor(srcY))
		yFrac := srcY - float64(y0)

		for x := 0; x < dstW; x++ {
			srcX := (float64(x)+0.5)*xRatio - 0.5
			x0 := int(math.Floor(srcX))
			xFrac := srcX - float64(x0)

			v0 := sample(x0, y0)*(1-xFrac) + sample(x0+1, y0)*xFrac
			v1 := sample(x0, y0+1)*(1-xFrac) + sample(x0+1, y0+1)*xFrac

			dst.Pix[y*dst.Stride+x] = clampRound(v0*(1-yFrac) + v1*yFrac)
		}
	}
}
