// Package imaging normalizes uploaded photos before face extraction.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Normalized is a decoded, size-capped photo ready for extraction. Width and
// Height are the original dimensions, recorded before any downscale.
type Normalized struct {
	JPEG   []byte
	Width  int
	Height int
}

// Normalize decodes the uploaded bytes, records the original dimensions and
// re-encodes as JPEG, downscaling so neither side exceeds maxDim while
// keeping the aspect ratio. The content hash is taken from the raw upload,
// never from the normalized output.
func Normalize(data []byte, maxDim int) (*Normalized, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	out := img
	if width > maxDim || height > maxDim {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxDim
			newHeight = int(float64(height) * float64(maxDim) / float64(width))
		} else {
			newHeight = maxDim
			newWidth = int(float64(width) * float64(maxDim) / float64(height))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return &Normalized{JPEG: buf.Bytes(), Width: width, Height: height}, nil
}
