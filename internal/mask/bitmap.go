package mask

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// ErrDimensionMismatch indicates a mask that does not match the target image
// size. Masks are never stretched to fit; the caller must re-author them.
var ErrDimensionMismatch = errors.New("mask: dimensions do not match target image")

// Bitmap is a region-of-interest mask at the native resolution of the image
// it applies to. Each pixel is either included in the editable region or
// excluded from it.
type Bitmap struct {
	width  int
	height int
	bits   []bool
}

// NewBitmap allocates a fully-excluded bitmap of the given dimensions.
func NewBitmap(width, height int) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask: invalid dimensions %dx%d", width, height)
	}
	return &Bitmap{width: width, height: height, bits: make([]bool, width*height)}, nil
}

// Width returns the bitmap width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the bitmap height in pixels.
func (b *Bitmap) Height() int { return b.height }

// Set marks the pixel at (x, y) as included. Out-of-bounds coordinates are ignored.
func (b *Bitmap) Set(x, y int) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	b.bits[y*b.width+x] = true
}

// Included reports whether the pixel at (x, y) is part of the editable region.
func (b *Bitmap) Included(x, y int) bool {
	if b == nil {
		return true
	}
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return false
	}
	return b.bits[y*b.width+x]
}

// IncludedCount returns the number of included pixels.
func (b *Bitmap) IncludedCount() int {
	n := 0
	for _, set := range b.bits {
		if set {
			n++
		}
	}
	return n
}

// Matches reports whether the bitmap covers an image of the given dimensions.
func (b *Bitmap) Matches(width, height int) bool {
	return b != nil && b.width == width && b.height == height
}

// EncodePNG serializes the bitmap as a grayscale PNG where included pixels
// are white and excluded pixels are black.
func (b *Bitmap) EncodePNG() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, b.width, b.height))
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if b.bits[y*b.width+x] {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mask: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG parses a mask previously produced by EncodePNG (or by a client
// canvas). Any pixel brighter than half intensity counts as included.
func DecodePNG(data []byte) (*Bitmap, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mask: decode png: %w", err)
	}
	bounds := img.Bounds()
	bitmap, err := NewBitmap(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray, _, _, alpha := img.At(x, y).RGBA()
			if alpha > 0 && gray >= 0x8000 {
				bitmap.Set(x-bounds.Min.X, y-bounds.Min.Y)
			}
		}
	}
	return bitmap, nil
}
