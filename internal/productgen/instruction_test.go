package productgen

import (
	"strings"
	"testing"
)

func baseRequest() Request {
	return Request{
		ModelImage:    []byte("model"),
		ProductImages: [][]byte{[]byte("bag")},
		AspectRatio:   "3:4",
		Style:         "natural",
		Variations:    1,
	}
}

func TestBuildInstructionSingleProduct(t *testing.T) {
	got := BuildInstruction(baseRequest())
	if !strings.Contains(got, "product from the second image") {
		t.Fatalf("instruction must reference the second image: %q", got)
	}
	if !strings.Contains(got, "3:4 aspect ratio") {
		t.Fatalf("instruction must carry the aspect ratio: %q", got)
	}
	if !strings.Contains(got, "natural") {
		t.Fatalf("instruction must carry the style: %q", got)
	}
}

func TestBuildInstructionMultiProductAndBackground(t *testing.T) {
	req := baseRequest()
	req.ProductImages = [][]byte{[]byte("bag"), []byte("scarf")}
	req.Background = &Background{Type: BackgroundPreset, Preset: "street"}
	req.Placement = &Placement{Position: PlacementLeftHand}
	req.Pose = "walking"
	got := BuildInstruction(req)
	if !strings.Contains(got, "2 products") {
		t.Fatalf("instruction must count the products: %q", got)
	}
	if !strings.Contains(got, "street setting") {
		t.Fatalf("instruction must carry the background preset: %q", got)
	}
	if !strings.Contains(got, "left hand") {
		t.Fatalf("instruction must carry the placement: %q", got)
	}
	if !strings.Contains(got, "Pose: walking.") {
		t.Fatalf("instruction must carry the pose: %q", got)
	}
}

func TestBuildInstructionChineseLanguageHint(t *testing.T) {
	req := baseRequest()
	req.Language = "zh"
	got := BuildInstruction(req)
	if !strings.Contains(got, "Simplified Chinese") {
		t.Fatalf("zh locale must add the language hint: %q", got)
	}

	req.Language = "en"
	if got := BuildInstruction(req); strings.Contains(got, "Simplified Chinese") {
		t.Fatalf("en locale must not add the language hint: %q", got)
	}
}

func TestBuildInstructionOriginalBackgroundKept(t *testing.T) {
	req := baseRequest()
	req.Background = &Background{Type: BackgroundOriginal}
	got := BuildInstruction(req)
	if !strings.Contains(got, "original background") {
		t.Fatalf("instruction must ask to keep the original background: %q", got)
	}
}

func TestVariationSuffix(t *testing.T) {
	if got := variationSuffix("base", 1, 0); got != "base" {
		t.Fatalf("single variation must not decorate the prompt: %q", got)
	}
	got := variationSuffix("base", 3, 1)
	if !strings.Contains(got, "Variation #2 of 3") {
		t.Fatalf("multi-variation prompt mismatch: %q", got)
	}
}

func TestNormalizeClampsVariations(t *testing.T) {
	req := baseRequest()
	req.Variations = 9
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if req.Variations != 4 {
		t.Fatalf("variations must clamp to 4, got %d", req.Variations)
	}
	req.Variations = 0
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if req.Variations != 1 {
		t.Fatalf("variations must clamp to 1, got %d", req.Variations)
	}
}

func TestNormalizeRequiresImages(t *testing.T) {
	req := baseRequest()
	req.ModelImage = nil
	if err := req.Normalize(); err == nil {
		t.Fatal("missing model image must be rejected")
	}
	req = baseRequest()
	req.ProductImages = nil
	if err := req.Normalize(); err == nil {
		t.Fatal("missing product images must be rejected")
	}
}
