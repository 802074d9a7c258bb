package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emergingrobotics/go-imgaccel/pkg/device"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
)

// SkipIfNoHardware skips the test unless the backend's device node exists
func SkipIfNoHardware(t *testing.T, b driver.Backend) string {
	t.Helper()

	nodes, err := device.Scan()
	if err == nil {
		for _, n := range nodes {
			if n.Backend == b {
				return n.Path
			}
		}
	}
	t.Skipf("No %s hardware available", b)
	return ""
}

// TempFile creates a temporary file with given content
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

// MakeTestImage creates a host image filled with a gradient pattern.
// pad extra bytes are added to every row.
func MakeTestImage(t *testing.T, width, height int, f format.PixelFormat, pad int) *host.Image {
	t.Helper()

	bpp := f.BytesPerPixel()
	img := &host.Image{
		Width:  width,
		Height: height,
		Stride: width*bpp + pad,
		Format: f,
	}
	img.Data = make([]byte, img.Stride*height)
	for y := 0; y < height; y++ {
		row := img.Row(y)
		for i := range row {
			row[i] = byte((i*7 + y*13) % 256)
		}
	}
	if err := img.Validate(); err != nil {
		t.Fatalf("invalid test image: %v", err)
	}
	return img
}

// MakeBlockImage creates a 3 or 4 channel image whose pixels are constant
// across each 2x2 block, so 4:2:0 chroma subsampling loses nothing
func MakeBlockImage(t *testing.T, width, height int, f format.PixelFormat) *host.Image {
	t.Helper()

	img, err := host.New(width, height, f)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	bpp := f.BytesPerPixel()
	for y := 0; y < height; y++ {
		row := img.Row(y)
		for x := 0; x < width; x++ {
			for c := 0; c < bpp; c++ {
				row[x*bpp+c] = byte(((x/2)*41 + (y/2)*67 + c*83) % 256)
			}
		}
	}
	return img
}

// MaxDiff returns the largest per-byte difference between two images of
// the same geometry, ignoring stride padding
func MaxDiff(t *testing.T, a, b *host.Image) int {
	t.Helper()

	if a.Width != b.Width || a.Height != b.Height || a.Format != b.Format {
		t.Fatalf("cannot compare %dx%d %v with %dx%d %v",
			a.Width, a.Height, a.Format, b.Width, b.Height, b.Format)
	}
	maxDiff := 0
	for y := 0; y < a.Height; y++ {
		ra, rb := a.Row(y), b.Row(y)
		for i := range ra {
			d := int(ra[i]) - int(rb[i])
			if d < 0 {
				d = -d
			}
			if d > maxDiff {
				maxDiff = d
			}
		}
	}
	return maxDiff
}

// AssertNoError fails if error is not nil
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError fails if error is nil
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}

// AssertBalanced fails unless every resource created on dev was
// destroyed exactly once
func AssertBalanced(t *testing.T, dev *FakeDevice, msg string) {
	t.Helper()
	if created, destroyed := dev.Created(), dev.Destroyed(); created != destroyed {
		t.Errorf("%s: %d resources created, %d destroyed (ops %v)", msg, created, destroyed, dev.Ops())
	}
	if n := dev.DoubleDestroys(); n != 0 {
		t.Errorf("%s: %d double destroys", msg, n)
	}
}
