package main

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
	"github.com/emergingrobotics/go-imgaccel/pkg/host"
)

// readImage decodes a PNG, JPEG, BMP or WebP file into a host image of
// format f
func readImage(path string, f format.PixelFormat) (*host.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	img, kind, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	out, err := host.FromImage(img, f)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s image: %w", kind, err)
	}
	return out, nil
}

// writeImage encodes img by the extension of path: .jpg/.jpeg as JPEG,
// .raw as tightly packed pixel bytes, anything else as PNG
func writeImage(path string, img *host.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".raw":
		for y := 0; y < img.Height && err == nil; y++ {
			_, err = file.Write(img.Row(y))
		}
	case ".jpg", ".jpeg":
		var std image.Image
		if std, err = img.ToImage(); err == nil {
			err = jpeg.Encode(file, std, &jpeg.Options{Quality: 95})
		}
	default:
		var std image.Image
		if std, err = img.ToImage(); err == nil {
			err = png.Encode(file, std)
		}
	}

	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
