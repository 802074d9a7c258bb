package pipeline

import (
	"github.com/emergingrobotics/go-imgaccel/pkg/bridge"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// resizePlan is the sequence of device ops for one resize
type resizePlan struct {
	rescale driver.Backend

	// work is the format the rescale runs in. When it differs from the
	// source format the image is converted before and after.
	work       format.PixelFormat
	convertIn  driver.Backend
	convertOut driver.Backend
}

func (p resizePlan) intermediate() bool {
	return p.convertIn != 0
}

// planResize picks the first member of mask that rescales with the
// requested kernel, then decides whether its intermediate format is needed
func planResize(mask driver.Backend, src format.PixelFormat, interp driver.Interp, border driver.Border) (resizePlan, error) {
	for _, caps := range driver.RescaleCandidates(mask) {
		if !caps.Supports(interp, border) {
			continue
		}
		if caps.Rescale.Has(src) {
			return resizePlan{rescale: caps.Backend, work: src}, nil
		}

		work := caps.Intermediate
		in, ok := driver.ConvertBackend(mask, src, work)
		if !ok {
			continue
		}
		out, ok := driver.ConvertBackend(mask, work, src)
		if !ok {
			continue
		}
		return resizePlan{
			rescale:    caps.Backend,
			work:       work,
			convertIn:  in.Backend,
			convertOut: out.Backend,
		}, nil
	}

	return resizePlan{}, bridge.NewError(bridge.KindUnsupportedFormat, "resize",
		"no backend in %s rescales %s with %s interpolation and %s border", mask, src, interp, border)
}

// planConvert picks the member of mask that converts src -> dst
func planConvert(mask driver.Backend, src, dst format.PixelFormat) (driver.Backend, error) {
	caps, ok := driver.ConvertBackend(mask, src, dst)
	if !ok {
		return 0, bridge.NewError(bridge.KindUnsupportedFormat, "convert",
			"no backend in %s converts %s to %s", mask, src, dst)
	}
	return caps.Backend, nil
}
