package mask

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
)

// ErrNoImage is returned when a canvas operation requires a loaded image.
var ErrNoImage = errors.New("mask: no image loaded")

// Canvas is the mask authoring surface. It presents an image scaled to fit a
// bounded viewport and lets callers paint an editable region with a circular
// brush in display coordinates. The painted region is kept at the image's
// native resolution; the display-to-native transform is re-derived whenever
// the viewport changes, so resizing never degrades an in-progress mask.
type Canvas struct {
	viewportW int
	viewportH int

	nativeW int
	nativeH int
	scale   float64

	brushRadius float64
	bitmap      *Bitmap
	hasContent  bool
	hasStroke   bool
	lastX       float64
	lastY       float64

	loaded  bool
	loadErr error

	onMaskChanged func(hasContent bool)
}

// NewCanvas constructs a canvas bounded by the given viewport dimensions.
func NewCanvas(viewportW, viewportH int, brushRadius float64) (*Canvas, error) {
	if viewportW <= 0 || viewportH <= 0 {
		return nil, fmt.Errorf("mask: invalid viewport %dx%d", viewportW, viewportH)
	}
	if brushRadius <= 0 {
		return nil, fmt.Errorf("mask: invalid brush radius %v", brushRadius)
	}
	return &Canvas{viewportW: viewportW, viewportH: viewportH, brushRadius: brushRadius}, nil
}

// OnMaskChanged registers an observer invoked when the mask transitions
// between empty and non-empty.
func (c *Canvas) OnMaskChanged(fn func(hasContent bool)) {
	c.onMaskChanged = fn
}

// Load decodes the image and fits it to the viewport. Any in-progress mask is
// discarded. On decode failure the canvas enters a retryable error state: the
// previous image is dropped, Err reports the cause and Load may be called
// again.
func (c *Canvas) Load(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		c.loaded = false
		c.loadErr = fmt.Errorf("mask: decode image: %w", err)
		c.resetMask()
		return c.loadErr
	}
	c.nativeW = cfg.Width
	c.nativeH = cfg.Height
	c.loaded = true
	c.loadErr = nil
	c.refit()
	c.resetMask()
	bitmap, err := NewBitmap(c.nativeW, c.nativeH)
	if err != nil {
		c.loaded = false
		c.loadErr = err
		return err
	}
	c.bitmap = bitmap
	return nil
}

// Err returns the load failure, if any. A non-nil error means the canvas has
// no usable image and Load should be retried.
func (c *Canvas) Err() error { return c.loadErr }

// Loaded reports whether an image is currently displayed.
func (c *Canvas) Loaded() bool { return c.loaded }

// Scale returns the current display-to-native scale factor.
func (c *Canvas) Scale() float64 { return c.scale }

// DisplaySize returns the on-screen dimensions of the fitted image.
func (c *Canvas) DisplaySize() (int, int) {
	if !c.loaded {
		return 0, 0
	}
	return int(math.Round(float64(c.nativeW) * c.scale)), int(math.Round(float64(c.nativeH) * c.scale))
}

// SetBrushRadius adjusts the brush radius, in display pixels.
func (c *Canvas) SetBrushRadius(radius float64) error {
	if radius <= 0 {
		return fmt.Errorf("mask: invalid brush radius %v", radius)
	}
	c.brushRadius = radius
	return nil
}

// PaintAt marks all native pixels within the brush radius of the display
// point (x, y) as included and starts a new stroke there.
func (c *Canvas) PaintAt(x, y float64) error {
	if !c.loaded {
		return ErrNoImage
	}
	c.stamp(x, y)
	c.lastX, c.lastY = x, y
	c.hasStroke = true
	return nil
}

// StrokeTo extends the current stroke from the last painted point to the
// display point (x, y), stamping the brush densely enough along the segment
// that fast pointer movement leaves no gaps.
func (c *Canvas) StrokeTo(x, y float64) error {
	if !c.loaded {
		return ErrNoImage
	}
	if !c.hasStroke {
		return c.PaintAt(x, y)
	}
	dx := x - c.lastX
	dy := y - c.lastY
	dist := math.Hypot(dx, dy)
	// Step at half the brush radius so consecutive stamps always overlap.
	step := c.brushRadius / 2
	if step < 1 {
		step = 1
	}
	steps := int(math.Ceil(dist / step))
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.stamp(c.lastX+dx*t, c.lastY+dy*t)
	}
	c.lastX, c.lastY = x, y
	return nil
}

// EndStroke finishes the current stroke. The next PaintAt starts a fresh one.
func (c *Canvas) EndStroke() {
	c.hasStroke = false
}

// Clear resets the mask to fully excluded and notifies observers.
func (c *Canvas) Clear() {
	hadContent := c.hasContent
	c.resetMask()
	if c.loaded {
		c.bitmap, _ = NewBitmap(c.nativeW, c.nativeH)
	}
	if hadContent && c.onMaskChanged != nil {
		c.onMaskChanged(false)
	}
}

// HasContent reports whether anything has been painted since the last Clear or Load.
func (c *Canvas) HasContent() bool { return c.hasContent }

// Resize re-fits the image to a new viewport. Only the display transform is
// re-derived; the accumulated mask keeps its native-resolution content.
func (c *Canvas) Resize(viewportW, viewportH int) error {
	if viewportW <= 0 || viewportH <= 0 {
		return fmt.Errorf("mask: invalid viewport %dx%d", viewportW, viewportH)
	}
	c.viewportW = viewportW
	c.viewportH = viewportH
	c.hasStroke = false
	if c.loaded {
		c.refit()
	}
	return nil
}

// ExportMask returns the painted region at native image resolution, or nil
// when nothing has been painted. A nil mask means "whole image eligible",
// which is distinct from a mask that covers zero pixels.
func (c *Canvas) ExportMask() *Bitmap {
	if !c.loaded || !c.hasContent {
		return nil
	}
	out, err := NewBitmap(c.nativeW, c.nativeH)
	if err != nil {
		return nil
	}
	copy(out.bits, c.bitmap.bits)
	return out
}

// stamp marks all native pixels within the brush of a display-space point.
func (c *Canvas) stamp(dispX, dispY float64) {
	cx := dispX / c.scale
	cy := dispY / c.scale
	radius := c.brushRadius / c.scale
	minX := int(math.Floor(cx - radius))
	maxX := int(math.Ceil(cx + radius))
	minY := int(math.Floor(cy - radius))
	maxY := int(math.Ceil(cy + radius))
	r2 := radius * radius
	marked := false
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if x < 0 || y < 0 || x >= c.nativeW || y >= c.nativeH {
				continue
			}
			ddx := float64(x) + 0.5 - cx
			ddy := float64(y) + 0.5 - cy
			if ddx*ddx+ddy*ddy <= r2 {
				c.bitmap.Set(x, y)
				marked = true
			}
		}
	}
	if marked && !c.hasContent {
		c.hasContent = true
		if c.onMaskChanged != nil {
			c.onMaskChanged(true)
		}
	}
}

// refit recomputes the scale that fits the native image inside the viewport
// while preserving aspect ratio. Images smaller than the viewport are shown 1:1.
func (c *Canvas) refit() {
	sx := float64(c.viewportW) / float64(c.nativeW)
	sy := float64(c.viewportH) / float64(c.nativeH)
	c.scale = math.Min(sx, sy)
	if c.scale > 1 {
		c.scale = 1
	}
}

// resetMask drops painted state without touching the display transform.
func (c *Canvas) resetMask() {
	c.bitmap = nil
	c.hasContent = false
	c.hasStroke = false
}
