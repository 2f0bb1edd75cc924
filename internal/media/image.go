package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// ImageDimensions decodes just enough of the file header to report size.
func ImageDimensions(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeImage loads a full image from disk.
func DecodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// DownscaleToPixels bounds an image by total pixel count, preserving aspect
// ratio. Images already inside the bound are returned unchanged.
func DownscaleToPixels(img image.Image, maxPixels int) image.Image {
	if maxPixels <= 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width*height <= maxPixels {
		return img
	}

	scale := math.Sqrt(float64(maxPixels) / float64(width*height))
	newWidth := int(math.Max(1, math.Floor(float64(width)*scale)))
	newHeight := int(math.Max(1, math.Floor(float64(height)*scale)))

	scaled := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
	return scaled
}

// WritePNG encodes an image to disk, creating parent directories as needed.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("encode png %s: %w", filepath.Base(path), err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close image file: %w", err)
	}
	return nil
}

// Thumbnail writes a bounded PNG derivative of the source image.
func Thumbnail(sourcePath, destPath string, maxPixels int) error {
	img, err := DecodeImage(sourcePath)
	if err != nil {
		return err
	}
	return WritePNG(destPath, DownscaleToPixels(img, maxPixels))
}
