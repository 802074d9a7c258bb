//go:build unit

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
	"github.com/emergingrobotics/go-imgaccel/testutil"
)

func uniformImage(t *testing.T, width, height int, f format.PixelFormat, px []byte) *host.Image {
	t.Helper()
	img, err := host.New(width, height, f)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < height; y++ {
		row := img.Row(y)
		for i := range row {
			row[i] = px[i%len(px)]
		}
	}
	return img
}

func TestResizeScenario(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	img := testutil.MakeBlockImage(t, 64, 48, format.BGR8)
	out, err := Resize(context.Background(), dev, img, 32, 24, driver.BackendVIC)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}

	if out.Width != 32 || out.Height != 24 || out.Format != format.BGR8 {
		t.Errorf("output is %dx%d %v, expected 32x24 BGR8", out.Width, out.Height, out.Format)
	}
	if out.Stride != 32*3 {
		t.Errorf("output stride = %d, expected %d", out.Stride, 32*3)
	}
	// wrap, stream, two intermediates and the output
	if dev.ImagesCreated() != 4 || dev.StreamsCreated() != 1 {
		t.Errorf("created %d images and %d streams, expected 4 and 1", dev.ImagesCreated(), dev.StreamsCreated())
	}
	testutil.AssertBalanced(t, dev, "resize")
}

func TestConvertSameFormatIsExact(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	img := testutil.MakeTestImage(t, 64, 48, format.BGR8, 5)
	out, err := ConvertFormat(context.Background(), dev, img, format.BGR8, driver.BackendVIC)
	if err != nil {
		t.Fatalf("ConvertFormat failed: %v", err)
	}
	if !host.Equal(img, out) {
		t.Error("same-format conversion changed pixels")
	}
	testutil.AssertBalanced(t, dev, "convert")
}

func TestResizeDimensions(t *testing.T) {
	tests := []struct {
		srcW, srcH int
		dstW, dstH int
	}{
		{1, 1, 100, 100},
		{100, 100, 1, 1},
		{7, 3, 13, 9},
		{64, 48, 64, 48},
	}

	for _, backend := range []driver.Backend{driver.BackendVIC, driver.BackendCUDA, driver.BackendCPU} {
		caps, _ := driver.CapabilitiesOf(backend)
		for _, tt := range tests {
			name := fmt.Sprintf("%v %dx%d->%dx%d", backend, tt.srcW, tt.srcH, tt.dstW, tt.dstH)

			dev := testutil.NewFakeDevice()
			img := uniformImage(t, tt.srcW, tt.srcH, format.RGB8, []byte{200, 90, 30})

			out, err := Resize(context.Background(), dev, img, tt.dstW, tt.dstH, backend)
			if err != nil {
				t.Errorf("%s: %v", name, err)
				dev.Close()
				continue
			}
			if out.Width != tt.dstW || out.Height != tt.dstH || out.Format != format.RGB8 {
				t.Errorf("%s: got %dx%d %v", name, out.Width, out.Height, out.Format)
			}

			want := uniformImage(t, tt.dstW, tt.dstH, format.RGB8, []byte{200, 90, 30})
			if d := testutil.MaxDiff(t, want, out); d > int(caps.RoundTripTolerance) {
				t.Errorf("%s: max diff %d, expected at most %d", name, d, caps.RoundTripTolerance)
			}
			testutil.AssertBalanced(t, dev, name)
			dev.Close()
		}
	}
}

func TestConvertRoundTrips(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	ctx := context.Background()

	img := testutil.MakeTestImage(t, 33, 17, format.RGB8, 0)
	bgr, err := ConvertFormat(ctx, dev, img, format.BGR8, driver.BackendCPU)
	if err != nil {
		t.Fatal(err)
	}
	if bgr.Format != format.BGR8 || bgr.Width != 33 || bgr.Height != 17 {
		t.Errorf("got %dx%d %v, expected 33x17 BGR8", bgr.Width, bgr.Height, bgr.Format)
	}
	back, err := ConvertFormat(ctx, dev, bgr, format.RGB8, driver.BackendCPU)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(img.Data, back.Data); diff != "" {
		t.Errorf("RGB8 -> BGR8 -> RGB8 not exact (-want +got):\n%s", diff)
	}
	testutil.AssertBalanced(t, dev, "round trip")
}

func TestYUVRoundTripWithinTolerance(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	caps, _ := driver.CapabilitiesOf(driver.BackendVIC)

	// Same-size resize on VIC is BGR8 -> NV12 -> rescale -> BGR8
	img := testutil.MakeBlockImage(t, 64, 48, format.BGR8)
	out, err := Resize(context.Background(), dev, img, 64, 48, driver.BackendVIC,
		WithInterpolation(driver.InterpNearest))
	if err != nil {
		t.Fatal(err)
	}
	if d := testutil.MaxDiff(t, img, out); d > int(caps.RoundTripTolerance) {
		t.Errorf("max diff %d, expected at most %d", d, caps.RoundTripTolerance)
	}
}

func TestValidationBeforeDeviceCalls(t *testing.T) {
	ctx := context.Background()
	valid := func() *host.Image {
		return testutil.MakeTestImage(t, 8, 8, format.RGB8, 0)
	}

	tests := []struct {
		name string
		run  func(p *Pipeline) error
		want error
	}{
		{"zero stride", func(p *Pipeline) error {
			img := valid()
			img.Stride = 0
			_, err := p.Resize(ctx, img, 4, 4, driver.BackendVIC)
			return err
		}, ErrInvalidBuffer},
		{"nil image", func(p *Pipeline) error {
			_, err := p.Resize(ctx, nil, 4, 4, driver.BackendVIC)
			return err
		}, ErrInvalidBuffer},
		{"zero target width", func(p *Pipeline) error {
			_, err := p.Resize(ctx, valid(), 0, 4, driver.BackendVIC)
			return err
		}, ErrInvalidBuffer},
		{"negative target height", func(p *Pipeline) error {
			_, err := p.Resize(ctx, valid(), 4, -2, driver.BackendVIC)
			return err
		}, ErrInvalidBuffer},
		{"four channel resize", func(p *Pipeline) error {
			_, err := p.Resize(ctx, testutil.MakeTestImage(t, 8, 8, format.RGBA8, 0), 4, 4, driver.BackendVIC)
			return err
		}, ErrUnsupportedFormat},
		{"planar host image", func(p *Pipeline) error {
			img := &host.Image{Width: 8, Height: 8, Stride: 8, Format: format.NV12, Data: make([]byte, 96)}
			_, err := p.ConvertFormat(ctx, img, format.RGB8, driver.BackendVIC)
			return err
		}, ErrUnsupportedFormat},
		{"planar target", func(p *Pipeline) error {
			_, err := p.ConvertFormat(ctx, valid(), format.NV12, driver.BackendVIC)
			return err
		}, ErrUnsupportedFormat},
		{"overflowing stride", func(p *Pipeline) error {
			img := &host.Image{Width: 1, Height: 3, Stride: 1 << 62, Format: format.U8, Data: make([]byte, 10)}
			_, err := p.ConvertFormat(ctx, img, format.U8, driver.BackendCPU)
			return err
		}, ErrInvalidBuffer},
		{"overflowing width", func(p *Pipeline) error {
			img := &host.Image{Width: math.MaxInt / 2, Height: 1, Stride: 24, Format: format.RGB8, Data: make([]byte, 24)}
			_, err := p.Resize(ctx, img, 4, 4, driver.BackendCPU)
			return err
		}, ErrInvalidBuffer},
		{"empty backend", func(p *Pipeline) error {
			_, err := p.ConvertFormat(ctx, valid(), format.BGR8, 0)
			return err
		}, ErrDeviceOperationFailed},
	}

	for _, tt := range tests {
		dev := testutil.NewFakeDevice()
		err := tt.run(New(dev))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, expected %v", tt.name, err, tt.want)
		}
		if dev.Created() != 0 || len(dev.Ops()) != 0 {
			t.Errorf("%s: device was called: %v", tt.name, dev.Ops())
		}
		dev.Close()
	}
}

func TestUnsupportedKernelIsRejectedEarly(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	img := testutil.MakeTestImage(t, 8, 8, format.BGR8, 0)
	_, err := Resize(context.Background(), dev, img, 4, 4, driver.BackendVIC, WithInterpolation(driver.InterpLanczos3))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("lanczos on vic: got %v", err)
	}
	if dev.Created() != 0 {
		t.Errorf("%d resources created", dev.Created())
	}

	out, err := Resize(context.Background(), dev, img, 4, 4, driver.BackendVIC|driver.BackendCPU,
		WithInterpolation(driver.InterpLanczos3))
	if err != nil {
		t.Fatalf("lanczos on vic+cpu: %v", err)
	}
	if out.Width != 4 || out.Height != 4 {
		t.Errorf("got %dx%d", out.Width, out.Height)
	}
}

func TestZeroBorderCornersMatchAcrossBackends(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	img := uniformImage(t, 2, 2, format.BGR8, []byte{128})
	corner := func(b driver.Backend) []byte {
		out, err := Resize(context.Background(), dev, img, 8, 8, b, WithBorder(driver.BorderZero))
		if err != nil {
			t.Fatalf("%v resize failed: %v", b, err)
		}
		return out.Row(0)[:3]
	}

	vic, cuda := corner(driver.BackendVIC), corner(driver.BackendCUDA)
	for c := 0; c < 3; c++ {
		if d := int(vic[c]) - int(cuda[c]); d < -2 || d > 2 {
			t.Errorf("channel %d: vic corner %v, cuda corner %v", c, vic, cuda)
		}
	}
	if vic[0] != vic[1] || vic[1] != vic[2] {
		t.Errorf("vic corner %v is not grey", vic)
	}
	testutil.AssertBalanced(t, dev, "zero border")
}

func TestCleanupUnderInjectedFailures(t *testing.T) {
	// A VIC resize makes 1 wrap, 1 stream, 3 allocations, 3 submits,
	// 1 sync and 1 lock
	tests := []struct {
		fault testutil.Fault
		nth   int
		want  error
	}{
		{testutil.FaultWrap, 1, ErrDeviceOperationFailed},
		{testutil.FaultStreamCreate, 1, ErrDeviceOperationFailed},
		{testutil.FaultAllocate, 1, ErrDeviceOperationFailed},
		{testutil.FaultAllocate, 2, ErrDeviceOperationFailed},
		{testutil.FaultAllocate, 3, ErrDeviceOperationFailed},
		{testutil.FaultImageInfo, 1, ErrDeviceOperationFailed},
		{testutil.FaultImageInfo, 3, ErrDeviceOperationFailed},
		{testutil.FaultSubmit, 1, ErrDeviceOperationFailed},
		{testutil.FaultSubmit, 2, ErrDeviceOperationFailed},
		{testutil.FaultSubmit, 3, ErrDeviceOperationFailed},
		{testutil.FaultSync, 1, ErrDeviceOperationFailed},
		{testutil.FaultLock, 1, ErrLockFailed},
		{testutil.FaultDestroy, 1, ErrDeviceOperationFailed},
		{testutil.FaultDestroy, 4, ErrDeviceOperationFailed},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%v #%d", tt.fault, tt.nth)

		dev := testutil.NewFakeDevice()
		dev.SetFailOn(tt.fault, tt.nth)

		img := testutil.MakeTestImage(t, 16, 12, format.BGR8, 0)
		out, err := Resize(context.Background(), dev, img, 8, 6, driver.BackendVIC)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, expected %v", name, err, tt.want)
		}
		if out != nil {
			t.Errorf("%s: partial result returned", name)
		}
		if dev.Calls(tt.fault) < tt.nth {
			t.Errorf("%s: fault point reached only %d times", name, dev.Calls(tt.fault))
		}
		testutil.AssertBalanced(t, dev, name)
		dev.Close()
	}
}

func TestConvertCleanupUnderInjectedFailures(t *testing.T) {
	faults := []testutil.Fault{
		testutil.FaultWrap,
		testutil.FaultStreamCreate,
		testutil.FaultAllocate,
		testutil.FaultSubmit,
		testutil.FaultSync,
		testutil.FaultLock,
		testutil.FaultDestroy,
	}

	for _, f := range faults {
		dev := testutil.NewFakeDevice()
		dev.SetFailOn(f, 1)

		img := testutil.MakeTestImage(t, 16, 12, format.BGR8, 0)
		if _, err := ConvertFormat(context.Background(), dev, img, format.RGB8, driver.BackendCUDA); err == nil {
			t.Errorf("%v: expected error", f)
		}
		testutil.AssertBalanced(t, dev, f.String())
		dev.Close()
	}
}

func TestDeviceStatusReachesCaller(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	dev.SetFailStatus(driver.StatusOutOfMemory)
	dev.SetFailOn(testutil.FaultAllocate, 1)

	img := testutil.MakeTestImage(t, 16, 12, format.BGR8, 0)
	_, err := Resize(context.Background(), dev, img, 8, 6, driver.BackendVIC)

	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pErr.Status != "ERROR_OUT_OF_MEMORY" || pErr.Message == "" {
		t.Errorf("Status = %q, Message = %q", pErr.Status, pErr.Message)
	}
}

func TestResizeDeadline(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()
	dev.SetBlockSync(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	img := testutil.MakeTestImage(t, 16, 12, format.BGR8, 0)
	_, err := Resize(ctx, dev, img, 8, 6, driver.BackendVIC)
	if !errors.Is(err, ErrDeviceOperationFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, expected device failure wrapping context.DeadlineExceeded", err)
	}
	if driver.StatusOf(err) != driver.StatusTimeout {
		t.Errorf("status = %v, expected timeout", driver.StatusOf(err))
	}
	testutil.AssertBalanced(t, dev, "deadline")
}

func TestCanceledContextCreatesNothing(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img := testutil.MakeTestImage(t, 16, 12, format.BGR8, 0)
	_, err := ConvertFormat(ctx, dev, img, format.RGB8, driver.BackendCPU)
	if !errors.Is(err, context.Canceled) || driver.StatusOf(err) != driver.StatusStreamAborted {
		t.Errorf("got %v", err)
	}
	if dev.Created() != 0 {
		t.Errorf("%d resources created", dev.Created())
	}
}

func TestConcurrentCalls(t *testing.T) {
	dev := testutil.NewFakeDevice()
	defer dev.Close()

	p := New(dev, WithLogger(zap.NewNop()))
	img := testutil.MakeBlockImage(t, 32, 32, format.RGB8)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		backend := driver.Backends[i%len(driver.Backends)]
		g.Go(func() error {
			out, err := p.Resize(context.Background(), img, 16, 16, backend)
			if err != nil {
				return err
			}
			if out.Width != 16 || out.Height != 16 {
				return fmt.Errorf("got %dx%d", out.Width, out.Height)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertBalanced(t, dev, "concurrent")
}
