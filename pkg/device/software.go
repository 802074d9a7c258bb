package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/logging"
	"github.com/emergingrobotics/go-imgaccel/pkg/transform"
)

// MaxImageDimension bounds the width and height of created images
const MaxImageDimension = 16384

// DefaultQueueDepth is the number of operations a stream buffers before
// submission blocks
const DefaultQueueDepth = 64

// Option configures a Software device
type Option func(*Software)

// WithQueueDepth sets the per-stream queue depth
func WithQueueDepth(n int) Option {
	return func(d *Software) {
		if n > 0 {
			d.queueDepth = n
		}
	}
}

// WithEngines overrides the number of operations backend b runs at once
func WithEngines(b driver.Backend, n int) Option {
	return func(d *Software) {
		if n > 0 {
			d.engineCount[b] = n
		}
	}
}

// Software emulates the VIC, CUDA and CPU backends on the host. Each
// stream is serviced by its own goroutine; kernels come from package
// transform.
type Software struct {
	mu      sync.Mutex
	closed  bool
	nextID  uint64
	images  map[driver.Image]*imageEntry
	streams map[driver.Stream]*streamEntry

	queueDepth  int
	engineCount map[driver.Backend]int
	engines     map[driver.Backend]*semaphore.Weighted
}

type imageEntry struct {
	data driver.ImageData
	mem  *storage // nil for wrapped host memory

	locked        bool
	pendingReads  int
	pendingWrites int
}

func (e *imageEntry) info() driver.ImageInfo {
	strides := make([]int, len(e.data.Planes))
	for i, p := range e.data.Planes {
		strides[i] = p.Stride
	}
	return driver.ImageInfo{
		Format:  e.data.Format,
		Width:   e.data.Width,
		Height:  e.data.Height,
		Strides: strides,
		Wrapped: e.mem == nil,
	}
}

// NewSoftware creates a software device
func NewSoftware(opts ...Option) *Software {
	d := &Software{
		images:      make(map[driver.Image]*imageEntry),
		streams:     make(map[driver.Stream]*streamEntry),
		queueDepth:  DefaultQueueDepth,
		engineCount: make(map[driver.Backend]int),
		engines:     make(map[driver.Backend]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, b := range driver.Backends {
		n, ok := d.engineCount[b]
		if !ok {
			caps, err := driver.CapabilitiesOf(b)
			if err != nil {
				continue
			}
			n = caps.Engines
		}
		d.engines[b] = semaphore.NewWeighted(int64(n))
	}
	return d
}

func (d *Software) log() *zap.Logger {
	return logging.Logger().Named("device")
}

// Name implements driver.Device
func (d *Software) Name() string {
	return DefaultName
}

// Live returns the number of images and streams not yet destroyed
func (d *Software) Live() (images, streams int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images), len(d.streams)
}

func (d *Software) newID() uint64 {
	d.nextID++
	return d.nextID
}

// StreamCreate implements driver.Device
func (d *Software) StreamCreate(backends driver.Backend) (driver.Stream, error) {
	if !backends.Valid() {
		return 0, driver.NewErrorf(driver.StatusInvalidArgument, "stream backends %s", backends)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, driver.NewError(driver.StatusDeviceClosed, "stream create")
	}

	id := driver.Stream(d.newID())
	s := &streamEntry{
		id:       id,
		backends: backends,
		queue:    make(chan task, d.queueDepth),
		done:     make(chan struct{}),
	}
	d.streams[id] = s
	go s.loop()

	d.log().Debug("stream created", zap.Uint64("stream", uint64(id)), zap.Stringer("backends", backends))
	return id, nil
}

func (d *Software) stream(id driver.Stream) (*streamEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, driver.NewError(driver.StatusDeviceClosed, "stream lookup")
	}
	s, ok := d.streams[id]
	if !ok {
		return nil, driver.NewErrorf(driver.StatusInvalidArgument, "unknown stream %d", id)
	}
	return s, nil
}

// StreamSync implements driver.Device
func (d *Software) StreamSync(id driver.Stream) error {
	s, err := d.stream(id)
	if err != nil {
		return err
	}

	fence := make(chan struct{})
	if err := s.enqueue(task{fence: fence}); err != nil {
		return err
	}
	<-fence

	if s.aborted.Load() {
		return driver.NewErrorf(driver.StatusStreamAborted, "stream %d aborted", id)
	}
	return s.takeErr()
}

// StreamDestroy implements driver.Device
func (d *Software) StreamDestroy(id driver.Stream) error {
	d.mu.Lock()
	s, ok := d.streams[id]
	if ok {
		delete(d.streams, id)
	}
	d.mu.Unlock()

	if !ok {
		return driver.NewErrorf(driver.StatusInvalidArgument, "unknown stream %d", id)
	}

	s.shutdown()
	d.log().Debug("stream destroyed", zap.Uint64("stream", uint64(id)))
	return nil
}

// ImageWrapHost implements driver.Device
func (d *Software) ImageWrapHost(data driver.ImageData) (driver.Image, error) {
	if err := data.Validate(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, driver.NewError(driver.StatusDeviceClosed, "image wrap")
	}

	planes := make([]driver.Plane, len(data.Planes))
	copy(planes, data.Planes)
	data.Planes = planes

	id := driver.Image(d.newID())
	d.images[id] = &imageEntry{data: data}
	return id, nil
}

// ImageCreate implements driver.Device
func (d *Software) ImageCreate(width, height int, f format.PixelFormat) (driver.Image, error) {
	if !f.Valid() {
		return 0, driver.NewErrorf(driver.StatusInvalidImageFormat, "image create: format %v", f)
	}
	if width <= 0 || height <= 0 || width > MaxImageDimension || height > MaxImageDimension {
		return 0, driver.NewErrorf(driver.StatusInvalidArgument, "image create: size %dx%d", width, height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, driver.NewError(driver.StatusDeviceClosed, "image create")
	}

	data, mem, err := newImageData(width, height, f)
	if err != nil {
		return 0, err
	}

	id := driver.Image(d.newID())
	d.images[id] = &imageEntry{data: data, mem: mem}
	return id, nil
}

// image must be called with d.mu held
func (d *Software) image(id driver.Image) (*imageEntry, error) {
	if d.closed {
		return nil, driver.NewError(driver.StatusDeviceClosed, "image lookup")
	}
	e, ok := d.images[id]
	if !ok {
		return nil, driver.NewErrorf(driver.StatusInvalidArgument, "unknown image %d", id)
	}
	return e, nil
}

// ImageInfo implements driver.Device
func (d *Software) ImageInfo(id driver.Image) (driver.ImageInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.image(id)
	if err != nil {
		return driver.ImageInfo{}, err
	}
	return e.info(), nil
}

// ImageLock implements driver.Device
func (d *Software) ImageLock(id driver.Image, mode driver.LockMode) (driver.ImageData, error) {
	if mode < driver.LockRead || mode > driver.LockReadWrite {
		return driver.ImageData{}, driver.NewErrorf(driver.StatusInvalidArgument, "lock mode %v", mode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.image(id)
	if err != nil {
		return driver.ImageData{}, err
	}
	if e.locked {
		return driver.ImageData{}, driver.NewErrorf(driver.StatusInvalidOperation, "image %d is already locked", id)
	}
	if e.pendingWrites > 0 {
		return driver.ImageData{}, driver.NewErrorf(driver.StatusInvalidOperation,
			"image %d has %d pending writes", id, e.pendingWrites)
	}
	if mode != driver.LockRead && e.pendingReads > 0 {
		return driver.ImageData{}, driver.NewErrorf(driver.StatusInvalidOperation,
			"image %d has %d pending reads", id, e.pendingReads)
	}

	e.locked = true
	return e.data, nil
}

// ImageUnlock implements driver.Device
func (d *Software) ImageUnlock(id driver.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.image(id)
	if err != nil {
		return err
	}
	if !e.locked {
		return driver.NewErrorf(driver.StatusInvalidOperation, "image %d is not locked", id)
	}
	e.locked = false
	return nil
}

// ImageDestroy implements driver.Device. A locked image is unlocked
// first; an image still used by queued operations cannot be destroyed.
func (d *Software) ImageDestroy(id driver.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.image(id)
	if err != nil {
		return err
	}
	if e.pendingReads > 0 || e.pendingWrites > 0 {
		return driver.NewErrorf(driver.StatusNotReady, "image %d is used by %d queued operations",
			id, e.pendingReads+e.pendingWrites)
	}

	delete(d.images, id)
	e.locked = false
	if e.mem != nil {
		if err := e.mem.free(); err != nil {
			return driver.NewErrorWithCause(driver.StatusInternalError, "image destroy", err)
		}
	}
	return nil
}

// submit validates the operands, marks them pending and queues run
func (d *Software) submit(sid driver.Stream, b driver.Backend, in, out driver.Image,
	check func(caps driver.Capabilities, src, dst *imageEntry) error,
	run func(src, dst driver.ImageData) error) error {

	if !b.Single() {
		return driver.NewErrorf(driver.StatusInvalidArgument, "submit on %s: expected a single backend", b)
	}
	caps, err := driver.CapabilitiesOf(b)
	if err != nil {
		return err
	}

	s, src, dst, err := d.reserve(sid, b, in, out, func(src, dst *imageEntry) error {
		return check(caps, src, dst)
	})
	if err != nil {
		return err
	}

	finish := func() {
		d.mu.Lock()
		src.pendingReads--
		dst.pendingWrites--
		d.mu.Unlock()
	}

	sem := d.engines[b]
	t := task{
		run: func() (err error) {
			if err := sem.Acquire(context.Background(), 1); err != nil {
				return driver.NewErrorWithCause(driver.StatusInternalError, "engine acquire", err)
			}
			defer sem.Release(1)
			// a faulting kernel fails its stream, not the process
			defer func() {
				if r := recover(); r != nil {
					d.log().Error("kernel panic", zap.Uint64("stream", uint64(sid)),
						zap.Stringer("backend", b), zap.Any("panic", r))
					err = driver.NewErrorWithCause(driver.StatusInternalError, "kernel", fmt.Errorf("panic: %v", r))
				}
			}()
			return run(src.data, dst.data)
		},
		finish: finish,
	}

	if err := s.enqueue(t); err != nil {
		finish()
		return err
	}
	return nil
}

// reserve looks up the operands and marks them pending
func (d *Software) reserve(sid driver.Stream, b driver.Backend, in, out driver.Image,
	check func(src, dst *imageEntry) error) (*streamEntry, *imageEntry, *imageEntry, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil, nil, driver.NewError(driver.StatusDeviceClosed, "submit")
	}
	s, ok := d.streams[sid]
	if !ok {
		return nil, nil, nil, driver.NewErrorf(driver.StatusInvalidArgument, "unknown stream %d", sid)
	}
	if !s.backends.Has(b) {
		return nil, nil, nil, driver.NewErrorf(driver.StatusInvalidArgument, "stream %d is not bound to %s", sid, b)
	}
	if in == out {
		return nil, nil, nil, driver.NewErrorf(driver.StatusInvalidArgument, "image %d is both input and output", in)
	}
	src, err := d.image(in)
	if err != nil {
		return nil, nil, nil, err
	}
	dst, err := d.image(out)
	if err != nil {
		return nil, nil, nil, err
	}
	if dst.locked {
		return nil, nil, nil, driver.NewErrorf(driver.StatusInvalidOperation, "output image %d is locked", out)
	}
	if err := check(src, dst); err != nil {
		return nil, nil, nil, err
	}

	src.pendingReads++
	dst.pendingWrites++
	return s, src, dst, nil
}

// SubmitConvertImageFormat implements driver.Device
func (d *Software) SubmitConvertImageFormat(sid driver.Stream, b driver.Backend, in, out driver.Image) error {
	err := d.submit(sid, b, in, out,
		func(caps driver.Capabilities, src, dst *imageEntry) error {
			if src.data.Width != dst.data.Width || src.data.Height != dst.data.Height {
				return driver.NewErrorf(driver.StatusInvalidArgument, "convert: size %dx%d -> %dx%d",
					src.data.Width, src.data.Height, dst.data.Width, dst.data.Height)
			}
			if !caps.CanConvert(src.data.Format, dst.data.Format) {
				return driver.NewErrorf(driver.StatusInvalidImageFormat, "convert on %s: %v -> %v",
					b, src.data.Format, dst.data.Format)
			}
			return nil
		},
		func(src, dst driver.ImageData) error {
			return kernelError("convert", transform.Convert(src, dst))
		})
	if err == nil {
		d.log().Debug("convert queued", zap.Uint64("stream", uint64(sid)), zap.Stringer("backend", b))
	}
	return err
}

// SubmitRescale implements driver.Device
func (d *Software) SubmitRescale(sid driver.Stream, b driver.Backend, in, out driver.Image,
	interp driver.Interp, border driver.Border) error {

	err := d.submit(sid, b, in, out,
		func(caps driver.Capabilities, src, dst *imageEntry) error {
			if src.data.Format != dst.data.Format {
				return driver.NewErrorf(driver.StatusInvalidImageFormat, "rescale: %v -> %v",
					src.data.Format, dst.data.Format)
			}
			if !caps.Rescale.Has(src.data.Format) {
				return driver.NewErrorf(driver.StatusInvalidImageFormat, "rescale on %s: format %v",
					b, src.data.Format)
			}
			if !caps.Supports(interp, border) {
				return driver.NewErrorf(driver.StatusNotImplemented, "rescale on %s: %v with %v border",
					b, interp, border)
			}
			return nil
		},
		func(src, dst driver.ImageData) error {
			return kernelError("rescale", transform.Rescale(src, dst, interp, border))
		})
	if err == nil {
		d.log().Debug("rescale queued", zap.Uint64("stream", uint64(sid)), zap.Stringer("backend", b),
			zap.Stringer("interp", interp), zap.Stringer("border", border))
	}
	return err
}

// kernelError maps a transform failure to a device status
func kernelError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transform.ErrUnsupportedFormat), errors.Is(err, transform.ErrFormatMismatch):
		return driver.NewErrorWithCause(driver.StatusInvalidImageFormat, op, err)
	case errors.Is(err, transform.ErrUnsupportedKernel):
		return driver.NewErrorWithCause(driver.StatusNotImplemented, op, err)
	case errors.Is(err, transform.ErrSizeMismatch):
		return driver.NewErrorWithCause(driver.StatusInvalidArgument, op, err)
	}
	return driver.NewErrorWithCause(driver.StatusInternalError, op, err)
}

// Close aborts every stream and frees every image still alive
func (d *Software) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := d.streams
	d.streams = make(map[driver.Stream]*streamEntry)
	d.mu.Unlock()

	for _, s := range streams {
		s.shutdown()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	for id, e := range d.images {
		if e.mem != nil {
			errs = multierr.Append(errs, e.mem.free())
		}
		delete(d.images, id)
	}
	if len(streams) > 0 {
		d.log().Warn("device closed with live streams", zap.Int("streams", len(streams)))
	}
	return errs
}

var _ driver.Device = (*Software)(nil)

// task is one queued operation. A task with a fence only signals that
// every task before it has completed.
type task struct {
	run    func() error
	finish func()
	fence  chan struct{}
}

type streamEntry struct {
	id       driver.Stream
	backends driver.Backend

	mu     sync.Mutex // guards sends on queue and closing it
	closed bool
	queue  chan task
	done   chan struct{}

	aborted atomic.Bool

	errMu sync.Mutex
	err   error
}

func (s *streamEntry) loop() {
	defer close(s.done)

	for t := range s.queue {
		if t.fence != nil {
			close(t.fence)
			continue
		}
		if !s.aborted.Load() {
			if err := t.run(); err != nil {
				s.setErr(err)
			}
		}
		t.finish()
	}
}

func (s *streamEntry) enqueue(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return driver.NewErrorf(driver.StatusStreamAborted, "stream %d destroyed", s.id)
	}
	s.queue <- t
	return nil
}

// shutdown skips queued operations, waits for the running one and stops
// the worker
func (s *streamEntry) shutdown() {
	s.aborted.Store(true)

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done
}

// setErr keeps the first failure until the next sync reports it
func (s *streamEntry) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamEntry) takeErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.err
	s.err = nil
	return err
}
