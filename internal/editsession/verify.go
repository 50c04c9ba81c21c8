package editsession

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"server/internal/mask"
)

// VerifyMaskedEdit checks the masked-region-preservation contract: every
// pixel outside the mask must be bit-identical between the pre-edit and
// post-edit images. Pixels inside the mask may differ freely.
func VerifyMaskedEdit(before, after []byte, region *mask.Bitmap) error {
	if region == nil {
		return nil
	}
	beforeImg, _, err := image.Decode(bytes.NewReader(before))
	if err != nil {
		return fmt.Errorf("decode pre-edit image: %w", err)
	}
	afterImg, _, err := image.Decode(bytes.NewReader(after))
	if err != nil {
		return fmt.Errorf("decode post-edit image: %w", err)
	}
	bb := beforeImg.Bounds()
	ab := afterImg.Bounds()
	if bb.Dx() != ab.Dx() || bb.Dy() != ab.Dy() {
		return fmt.Errorf("result is %dx%d but pre-edit image is %dx%d", ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	if !region.Matches(bb.Dx(), bb.Dy()) {
		return fmt.Errorf("mask is %dx%d but images are %dx%d", region.Width(), region.Height(), bb.Dx(), bb.Dy())
	}
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			if region.Included(x, y) {
				continue
			}
			br, bg, bbl, ba := beforeImg.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			ar, ag, abl, aa := afterImg.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			if br != ar || bg != ag || bbl != abl || ba != aa {
				return fmt.Errorf("pixel (%d,%d) outside the mask was modified", x, y)
			}
		}
	}
	return nil
}
