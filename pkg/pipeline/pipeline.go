// Package pipeline runs resize and format conversion of host images on
// an accelerator device. Every device resource a call creates is
// released before the call returns.
package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/emergingrobotics/go-imgaccel/pkg/bridge"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
	"github.com/emergingrobotics/go-imgaccel/pkg/logging"
	"github.com/emergingrobotics/go-imgaccel/pkg/stream"
)

// Pipeline runs transforms on one device. It holds no per-call state
// and is safe for concurrent use.
type Pipeline struct {
	dev  driver.Device
	opts options
	log  *zap.Logger
}

// New creates a pipeline on dev
func New(dev driver.Device, opts ...Option) *Pipeline {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logging.Logger()
	}
	return &Pipeline{
		dev:  dev,
		opts: o,
		log:  log.Named("pipeline"),
	}
}

// Resize returns a copy of img scaled to width x height
func Resize(ctx context.Context, dev driver.Device, img *host.Image, width, height int, backend driver.Backend, opts ...Option) (*host.Image, error) {
	return New(dev, opts...).Resize(ctx, img, width, height, backend)
}

// ConvertFormat returns a copy of img in the target format
func ConvertFormat(ctx context.Context, dev driver.Device, img *host.Image, target format.PixelFormat, backend driver.Backend, opts ...Option) (*host.Image, error) {
	return New(dev, opts...).ConvertFormat(ctx, img, target, backend)
}

// Resize scales a 3-channel 8-bit image to width x height. The result
// has the input's format and a tightly packed stride.
func (p *Pipeline) Resize(ctx context.Context, img *host.Image, width, height int, backend driver.Backend) (out *host.Image, err error) {
	const op = "resize"

	if err := validateInput(op, img); err != nil {
		return nil, err
	}
	if img.Format != format.RGB8 && img.Format != format.BGR8 {
		return nil, bridge.NewError(bridge.KindUnsupportedFormat, op,
			"expected a 3-channel 8-bit image, got %s", img.Format)
	}
	if width <= 0 || height <= 0 {
		return nil, bridge.NewError(bridge.KindInvalidBuffer, op,
			"invalid target size %dx%d", width, height)
	}
	if err := validateBackend(op, backend); err != nil {
		return nil, err
	}
	plan, err := planResize(backend, img.Format, p.opts.interp, p.opts.border)
	if err != nil {
		return nil, err
	}
	if err := contextError(ctx, op); err != nil {
		return nil, err
	}

	log := p.log.With(zap.String("op", op), zap.Stringer("backend", backend))
	log.Debug("planned",
		zap.Stringer("format", img.Format),
		zap.Stringer("work", plan.work),
		zap.Stringer("rescale", plan.rescale),
		zap.Int("width", width),
		zap.Int("height", height))

	r := &resources{log: log}
	defer func() {
		if rerr := r.release(); rerr != nil && err == nil {
			out, err = nil, rerr
		}
	}()

	input, err := bridge.Wrap(p.dev, img)
	if err != nil {
		return nil, err
	}
	r.track(input)

	s, err := stream.Create(p.dev, backend, log)
	if err != nil {
		return nil, err
	}
	r.stream = s

	src := input
	if plan.intermediate() {
		mid, err := bridge.Allocate(p.dev, img.Width, img.Height, plan.work)
		if err != nil {
			return nil, err
		}
		r.track(mid)
		if err := s.SubmitConvert(plan.convertIn, input, mid); err != nil {
			return nil, err
		}
		src = mid
	}

	scaled, err := bridge.Allocate(p.dev, width, height, plan.work)
	if err != nil {
		return nil, err
	}
	r.track(scaled)
	if err := s.SubmitRescale(plan.rescale, src, scaled, p.opts.interp, p.opts.border); err != nil {
		return nil, err
	}

	result := scaled
	if plan.intermediate() {
		final, err := bridge.Allocate(p.dev, width, height, img.Format)
		if err != nil {
			return nil, err
		}
		r.track(final)
		if err := s.SubmitConvert(plan.convertOut, scaled, final); err != nil {
			return nil, err
		}
		result = final
	}

	if err := s.SyncContext(ctx); err != nil {
		return nil, err
	}
	return readBack(result)
}

// ConvertFormat converts img to target, keeping its size. Converting to
// the image's own format is an exact copy.
func (p *Pipeline) ConvertFormat(ctx context.Context, img *host.Image, target format.PixelFormat, backend driver.Backend) (out *host.Image, err error) {
	const op = "convert"

	if err := validateInput(op, img); err != nil {
		return nil, err
	}
	if !target.IsPacked() {
		return nil, bridge.NewError(bridge.KindUnsupportedFormat, op,
			"target %s cannot be returned as a host image", target)
	}
	if err := validateBackend(op, backend); err != nil {
		return nil, err
	}
	convertOn, err := planConvert(backend, img.Format, target)
	if err != nil {
		return nil, err
	}
	if err := contextError(ctx, op); err != nil {
		return nil, err
	}

	log := p.log.With(zap.String("op", op), zap.Stringer("backend", backend))
	r := &resources{log: log}
	defer func() {
		if rerr := r.release(); rerr != nil && err == nil {
			out, err = nil, rerr
		}
	}()

	input, err := bridge.Wrap(p.dev, img)
	if err != nil {
		return nil, err
	}
	r.track(input)

	s, err := stream.Create(p.dev, backend, log)
	if err != nil {
		return nil, err
	}
	r.stream = s

	output, err := bridge.Allocate(p.dev, img.Width, img.Height, target)
	if err != nil {
		return nil, err
	}
	r.track(output)

	if err := s.SubmitConvert(convertOn, input, output); err != nil {
		return nil, err
	}
	if err := s.SyncContext(ctx); err != nil {
		return nil, err
	}
	return readBack(output)
}

func validateInput(op string, img *host.Image) error {
	err := img.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, host.ErrNotPacked):
		return bridge.NewError(bridge.KindUnsupportedFormat, op, "%v", err)
	default:
		return bridge.NewError(bridge.KindInvalidBuffer, op, "%v", err)
	}
}

func validateBackend(op string, backend driver.Backend) error {
	if backend.Valid() {
		return nil
	}
	return &bridge.Error{
		Kind:    bridge.KindDeviceOperationFailed,
		Op:      op,
		Status:  driver.StatusInvalidArgument.Name(),
		Message: "invalid backend selector " + backend.String(),
	}
}

// contextError fails fast when ctx already ended, before any device
// resource is created
func contextError(ctx context.Context, op string) error {
	cerr := ctx.Err()
	if cerr == nil {
		return nil
	}
	status := driver.StatusStreamAborted
	if errors.Is(cerr, context.DeadlineExceeded) {
		status = driver.StatusTimeout
	}
	return bridge.FromDevice(op, driver.NewErrorWithCause(status, "context done before submit", cerr))
}

func readBack(h *bridge.Handle) (out *host.Image, err error) {
	err = bridge.LockForRead(h, func(v *bridge.View) error {
		var err error
		out, err = v.ToHost()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
