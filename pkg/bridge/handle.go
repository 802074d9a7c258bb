// Package bridge converts between host images and device image handles.
//
// Wrap aliases host memory without copying; Allocate asks the device for
// storage. Both return a Handle that must be destroyed exactly once.
// Lock maps a handle for host access and returns a View that is valid
// until Unlock.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
	"github.com/emergingrobotics/go-imgaccel/pkg/transform"
)

// Mode tells whether a handle aliases host memory or owns device storage
type Mode int

const (
	ModeWrapped Mode = iota + 1
	ModeAllocated
)

func (m Mode) String() string {
	switch m {
	case ModeWrapped:
		return "wrapped"
	case ModeAllocated:
		return "allocated"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Handle owns one device image
type Handle struct {
	dev    driver.Device
	id     driver.Image
	mode   Mode
	width  int
	height int
	format format.PixelFormat
	stride int

	mu        sync.Mutex
	locked    bool
	destroyed bool
}

// Wrap creates a handle aliasing img's memory. The handle records img's
// format exactly. img must not be modified until the handle is destroyed.
func Wrap(dev driver.Device, img *host.Image) (*Handle, error) {
	if err := img.Validate(); err != nil {
		if errors.Is(err, host.ErrNotPacked) {
			return nil, &Error{Kind: KindUnsupportedFormat, Op: "wrap", Message: err.Error(), Cause: err}
		}
		return nil, &Error{Kind: KindInvalidBuffer, Op: "wrap", Message: err.Error(), Cause: err}
	}

	id, err := dev.ImageWrapHost(img.ImageData())
	if err != nil {
		return nil, FromDevice("wrap", err)
	}

	return &Handle{
		dev:    dev,
		id:     id,
		mode:   ModeWrapped,
		width:  img.Width,
		height: img.Height,
		format: img.Format,
		stride: img.Stride,
	}, nil
}

// Allocate creates a handle backed by device-owned storage
func Allocate(dev driver.Device, width, height int, f format.PixelFormat) (*Handle, error) {
	if width <= 0 || height <= 0 {
		return nil, NewError(KindInvalidBuffer, "allocate", "dimensions %dx%d", width, height)
	}
	if !f.Valid() {
		return nil, NewError(KindUnsupportedFormat, "allocate", "format %v", f)
	}

	id, err := dev.ImageCreate(width, height, f)
	if err != nil {
		return nil, FromDevice("allocate", err)
	}

	info, err := dev.ImageInfo(id)
	if err != nil {
		return nil, multierr.Append(FromDevice("allocate", err), FromDevice("destroy", dev.ImageDestroy(id)))
	}

	stride := 0
	if len(info.Strides) > 0 {
		stride = info.Strides[0]
	}

	return &Handle{
		dev:    dev,
		id:     id,
		mode:   ModeAllocated,
		width:  width,
		height: height,
		format: f,
		stride: stride,
	}, nil
}

// ID returns the device image id
func (h *Handle) ID() driver.Image { return h.id }

// Mode returns how the handle was created
func (h *Handle) Mode() Mode { return h.mode }

func (h *Handle) Width() int                 { return h.width }
func (h *Handle) Height() int                { return h.height }
func (h *Handle) Format() format.PixelFormat { return h.format }

// Stride returns the row stride of the first plane in bytes
func (h *Handle) Stride() int { return h.stride }

// Destroyed reports whether Destroy has been called
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Destroy releases the device image. For wrapped handles only the
// device wrapper is released; the host memory is untouched. Calling
// Destroy again is a no-op.
func (h *Handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return nil
	}
	h.destroyed = true
	h.locked = false

	return FromDevice("destroy", h.dev.ImageDestroy(h.id))
}

// Lock maps the handle for host access. Every operation that writes the
// handle must have been synchronized first.
func (h *Handle) Lock(mode driver.LockMode) (*View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return nil, NewError(KindLockFailed, "lock", "handle %d is destroyed", h.id)
	}
	if h.locked {
		return nil, NewError(KindLockFailed, "lock", "handle %d is already locked", h.id)
	}

	data, err := h.dev.ImageLock(h.id, mode)
	if err != nil {
		return nil, deviceError(KindLockFailed, "lock", err)
	}
	h.locked = true

	return &View{
		Width:  data.Width,
		Height: data.Height,
		Format: data.Format,
		Planes: data.Planes,
		handle: h,
	}, nil
}

func (h *Handle) unlock() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.locked || h.destroyed {
		return nil
	}
	h.locked = false
	return FromDevice("unlock", h.dev.ImageUnlock(h.id))
}

// LockForRead locks h for reading, runs fn and unlocks on every path,
// including a panic in fn
func LockForRead(h *Handle, fn func(v *View) error) (err error) {
	v, err := h.Lock(driver.LockRead)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, v.Unlock())
	}()

	return fn(v)
}

// View is host access to a locked handle, valid until Unlock
type View struct {
	Width  int
	Height int
	Format format.PixelFormat
	Planes []driver.Plane

	handle   *Handle
	unlocked bool
}

// Unlock ends host access. Calling Unlock again is a no-op.
func (v *View) Unlock() error {
	if v.unlocked {
		return nil
	}
	v.unlocked = true
	v.Planes = nil
	return v.handle.unlock()
}

// CopyTo copies the view into dst row by row, honouring both strides.
// dst must have the view's size and format.
func (v *View) CopyTo(dst *host.Image) error {
	if v.unlocked {
		return NewError(KindLockFailed, "copy", "view is unlocked")
	}
	if err := dst.Validate(); err != nil {
		return &Error{Kind: KindInvalidBuffer, Op: "copy", Message: err.Error(), Cause: err}
	}
	if dst.Width != v.Width || dst.Height != v.Height {
		return NewError(KindInvalidBuffer, "copy", "destination is %dx%d, view is %dx%d",
			dst.Width, dst.Height, v.Width, v.Height)
	}
	if dst.Format != v.Format || len(v.Planes) != 1 {
		return NewError(KindUnsupportedFormat, "copy", "cannot copy %v view into %v image", v.Format, dst.Format)
	}

	transform.CopyPlane(v.Planes[0], driver.Plane{
		Width:  dst.Width,
		Height: dst.Height,
		Stride: dst.Stride,
		Data:   dst.Data,
	}, dst.RowBytes())
	return nil
}

// ToHost copies the view into a new tightly packed host image
func (v *View) ToHost() (*host.Image, error) {
	dst, err := host.New(v.Width, v.Height, v.Format)
	if err != nil {
		return nil, &Error{Kind: KindUnsupportedFormat, Op: "copy", Message: err.Error(), Cause: err}
	}
	if err := v.CopyTo(dst); err != nil {
		return nil, err
	}
	return dst, nil
}
