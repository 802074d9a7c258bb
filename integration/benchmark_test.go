//go:build benchmark

package integration

import (
	"context"
	"testing"

	"github.com/emergingrobotics/go-imgaccel/pkg/device"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
	"github.com/emergingrobotics/go-imgaccel/pkg/pipeline"
)

func benchImage(b *testing.B, width, height int, f format.PixelFormat) *host.Image {
	b.Helper()
	img, err := host.New(width, height, f)
	if err != nil {
		b.Fatal(err)
	}
	for i := range img.Data {
		img.Data[i] = byte(i * 31)
	}
	return img
}

func benchmarkResize(b *testing.B, backend driver.Backend) {
	dev := device.NewSoftware()
	defer dev.Close()

	p := pipeline.New(dev)
	img := benchImage(b, 1280, 720, format.BGR8)
	ctx := context.Background()

	b.SetBytes(int64(len(img.Data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Resize(ctx, img, 640, 360, backend); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkResizeVIC includes the NV12 conversions around the rescale
func BenchmarkResizeVIC(b *testing.B)  { benchmarkResize(b, driver.BackendVIC) }
func BenchmarkResizeCUDA(b *testing.B) { benchmarkResize(b, driver.BackendCUDA) }
func BenchmarkResizeCPU(b *testing.B)  { benchmarkResize(b, driver.BackendCPU) }

// BenchmarkThroughput measures frames per second with parallel callers
func BenchmarkThroughput(b *testing.B) {
	dev := device.NewSoftware()
	defer dev.Close()

	p := pipeline.New(dev)
	img := benchImage(b, 640, 480, format.RGB8)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := p.Resize(context.Background(), img, 224, 224, driver.BackendVIC|driver.BackendCUDA); err != nil {
				b.Error(err)
				return
			}
		}
	})
	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "fps")
}

func BenchmarkConvert(b *testing.B) {
	dev := device.NewSoftware()
	defer dev.Close()

	img := benchImage(b, 1280, 720, format.BGR8)
	ctx := context.Background()

	b.SetBytes(int64(len(img.Data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pipeline.ConvertFormat(ctx, dev, img, format.RGB8, driver.BackendCUDA); err != nil {
			b.Fatal(err)
		}
	}
}
