package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestThumbnailDownscalesLargeImages(t *testing.T) {
	data := encodeTestPNG(t, 2048, 1024)
	thumb, err := Thumbnail(data)
	if err != nil {
		t.Fatalf("Thumbnail returned error: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("thumbnail format mismatch: %q", format)
	}
	if cfg.Width != 512 || cfg.Height != 256 {
		t.Fatalf("thumbnail dimensions mismatch: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	data := encodeTestPNG(t, 100, 80)
	thumb, err := Thumbnail(data)
	if err != nil {
		t.Fatalf("Thumbnail returned error: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Fatalf("small image must keep its size, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	if _, err := Thumbnail([]byte("not an image")); err == nil {
		t.Fatal("garbage input must be rejected")
	}
}
