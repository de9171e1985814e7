package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

// PreviewQuality is the lossy WebP quality used for previews.
const PreviewQuality = 80

// EncodePNG encodes img as PNG, the export format.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes img as lossy WebP for previews.
func EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail shrinks img so neither side exceeds maxDimension, keeping the
// aspect ratio. Smaller images are returned as is.
func Thumbnail(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	w, h := thumbnailDimensions(b.Dx(), b.Dy(), maxDimension)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Over, nil)
	return out
}

func thumbnailDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if width > height {
		return maxDimension, int(float64(height) * float64(maxDimension) / float64(width))
	}
	return int(float64(width) * float64(maxDimension) / float64(height)), maxDimension
}
