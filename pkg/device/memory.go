package device

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// PageSize is the allocation granularity of image storage
const PageSize = 4096

// StrideAlignment is the row alignment of device-owned planes
const StrideAlignment = 64

// storage is page-aligned anonymous memory backing a created image
type storage struct {
	data          []byte
	size          int
	allocatedSize int // includes page rounding
}

// allocateStorage maps size bytes of zeroed memory
func allocateStorage(size int) (*storage, error) {
	if size <= 0 {
		return nil, driver.NewErrorf(driver.StatusInvalidArgument, "storage size %d", size)
	}

	alignedSize := ((size + PageSize - 1) / PageSize) * PageSize

	data, err := unix.Mmap(-1, 0, alignedSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, driver.StatusFromErrno(errno, fmt.Sprintf("mmap %d bytes", alignedSize))
		}
		return nil, driver.NewErrorWithCause(driver.StatusOutOfMemory, "mmap failed", err)
	}

	return &storage{
		data:          data[:size],
		size:          size,
		allocatedSize: alignedSize,
	}, nil
}

// free unmaps the storage. Calling free twice is a no-op.
func (s *storage) free() error {
	if s.data == nil {
		return nil
	}
	data := s.data[:s.allocatedSize]
	s.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}

// alignStride rounds rowBytes up to StrideAlignment
func alignStride(rowBytes int) int {
	return ((rowBytes + StrideAlignment - 1) / StrideAlignment) * StrideAlignment
}

// planeLayout returns the planes of a width x height image with aligned
// strides, without storage, and the total number of bytes they need
func planeLayout(width, height int, f format.PixelFormat) ([]driver.Plane, int) {
	infos := f.Planes(width, height)
	planes := make([]driver.Plane, len(infos))
	total := 0
	for i, info := range infos {
		stride := alignStride(info.RowBytes())
		planes[i] = driver.Plane{
			Width:  info.Width,
			Height: info.Height,
			Stride: stride,
		}
		total += stride * info.Height
	}
	return planes, total
}

// newImageData allocates storage and carves it into planes
func newImageData(width, height int, f format.PixelFormat) (driver.ImageData, *storage, error) {
	planes, total := planeLayout(width, height, f)

	mem, err := allocateStorage(total)
	if err != nil {
		return driver.ImageData{}, nil, err
	}

	offset := 0
	for i := range planes {
		n := planes[i].Stride * planes[i].Height
		planes[i].Data = mem.data[offset : offset+n : offset+n]
		offset += n
	}

	return driver.ImageData{
		Format: f,
		Width:  width,
		Height: height,
		Planes: planes,
	}, mem, nil
}
