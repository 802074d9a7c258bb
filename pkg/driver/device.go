package driver

import (
	"fmt"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Image is an opaque device image handle
type Image uint64

// Stream is an opaque execution stream handle
type Stream uint64

// LockMode selects the access requested by ImageLock
type LockMode int

const (
	LockRead LockMode = iota + 1
	LockWrite
	LockReadWrite
)

func (m LockMode) String() string {
	switch m {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	case LockReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("LockMode(%d)", int(m))
}

// Plane is one plane of image memory
type Plane struct {
	Width  int
	Height int
	Stride int // bytes per row
	Data   []byte
}

// ImageData describes image memory, either supplied by the host for
// wrapping or returned by ImageLock
type ImageData struct {
	Format format.PixelFormat
	Width  int
	Height int
	Planes []Plane
}

// ImageInfo describes a device image without exposing its memory
type ImageInfo struct {
	Format  format.PixelFormat
	Width   int
	Height  int
	Strides []int
	Wrapped bool
}

// Validate checks that the planes cover the geometry required by the format
func (d ImageData) Validate() error {
	if !d.Format.Valid() {
		return NewErrorf(StatusInvalidImageFormat, "invalid pixel format %v", d.Format)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return NewErrorf(StatusInvalidArgument, "invalid image size %dx%d", d.Width, d.Height)
	}
	expected := d.Format.Planes(d.Width, d.Height)
	if len(d.Planes) != len(expected) {
		return NewErrorf(StatusInvalidArgument, "%v needs %d planes, got %d", d.Format, len(expected), len(d.Planes))
	}
	for i, info := range expected {
		p := d.Planes[i]
		if p.Width != info.Width || p.Height != info.Height {
			return NewErrorf(StatusInvalidArgument, "plane %d is %dx%d, expected %dx%d",
				i, p.Width, p.Height, info.Width, info.Height)
		}
		if info.Width <= 0 || info.Width > len(p.Data)/info.Channels {
			return NewErrorf(StatusInvalidArgument, "plane %d has %d bytes for width %d", i, len(p.Data), info.Width)
		}
		rowBytes := info.RowBytes()
		if p.Stride < rowBytes {
			return NewErrorf(StatusInvalidArgument, "plane %d stride %d is less than row size %d",
				i, p.Stride, rowBytes)
		}
		if p.Height-1 > (len(p.Data)-rowBytes)/p.Stride {
			return NewErrorf(StatusInvalidArgument, "plane %d has %d bytes for %d rows of stride %d",
				i, len(p.Data), p.Height, p.Stride)
		}
	}
	return nil
}

// Device is the accelerator API consumed by the handle bridge and the
// transform pipeline. Submit calls enqueue work and return immediately;
// completion is only observed through StreamSync.
type Device interface {
	// Name identifies the device implementation
	Name() string

	// StreamCreate creates an ordered queue serviced by the given backends
	StreamCreate(backends Backend) (Stream, error)
	// StreamSync blocks until every operation submitted to s has completed
	// and reports the first failure among them
	StreamSync(s Stream) error
	// StreamDestroy aborts operations that have not started, waits for the
	// running one and releases the stream
	StreamDestroy(s Stream) error

	// ImageWrapHost creates a handle aliasing host memory without copying.
	// Destroying the handle never frees the aliased memory.
	ImageWrapHost(data ImageData) (Image, error)
	// ImageCreate allocates device-owned storage
	ImageCreate(width, height int, f format.PixelFormat) (Image, error)
	// ImageInfo reports the geometry of an image
	ImageInfo(img Image) (ImageInfo, error)
	// ImageLock maps the image for host access. Locking fails while
	// submitted operations that write the image are pending.
	ImageLock(img Image, mode LockMode) (ImageData, error)
	// ImageUnlock ends host access started by ImageLock
	ImageUnlock(img Image) error
	// ImageDestroy releases the handle and, for created images, its storage
	ImageDestroy(img Image) error

	// SubmitConvertImageFormat converts in to out's format on backend b.
	// Both images must have the same size.
	SubmitConvertImageFormat(s Stream, b Backend, in, out Image) error
	// SubmitRescale resamples in to out's size on backend b.
	// Both images must have the same format.
	SubmitRescale(s Stream, b Backend, in, out Image, interp Interp, border Border) error

	// Close releases every resource still held by the device
	Close() error
}
