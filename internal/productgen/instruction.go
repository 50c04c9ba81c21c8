package productgen

import (
	"fmt"
	"strings"
)

var placementPhrases = map[PlacementPosition]string{
	PlacementLeftHand:  "The model holds the product in the left hand.",
	PlacementRightHand: "The model holds the product in the right hand.",
	PlacementShoulder:  "The product is worn or carried on the shoulder.",
	PlacementChest:     "The product is positioned at chest level.",
	PlacementWaist:     "The product is positioned at the waist.",
}

// BuildInstruction composes the provider instruction from a normalized
// request. The first image is always the model, product images follow, so the
// instruction references them by position.
func BuildInstruction(req Request) string {
	parts := []string{}
	if len(req.ProductImages) > 1 {
		parts = append(parts, fmt.Sprintf(
			"Compose a product photo of the model in the first image wearing or holding the %d products from the following images.",
			len(req.ProductImages)))
	} else {
		parts = append(parts, "Compose a product photo of the model in the first image wearing or holding the product from the second image.")
	}

	if req.Background != nil {
		switch NormalizeBackgroundType(string(req.Background.Type)) {
		case BackgroundPreset:
			if preset := strings.TrimSpace(req.Background.Preset); preset != "" {
				parts = append(parts, "Place the scene in a "+preset+" setting.")
			}
		case BackgroundDescription:
			if desc := strings.TrimSpace(req.Background.Description); desc != "" {
				parts = append(parts, "Background: "+desc+".")
			}
		case BackgroundCustom:
			parts = append(parts, "Use the supplied background image as the scene.")
		default:
			parts = append(parts, "Keep the original background from the model photo.")
		}
	}

	if req.Placement != nil {
		if phrase, ok := placementPhrases[NormalizePlacement(string(req.Placement.Position))]; ok {
			parts = append(parts, phrase)
		}
		if custom := strings.TrimSpace(req.Placement.CustomInstruction); custom != "" {
			parts = append(parts, "Placement notes: "+custom+".")
		}
	}

	if pose := strings.TrimSpace(req.Pose); pose != "" {
		parts = append(parts, "Pose: "+pose+".")
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		parts = append(parts, "Visual style: "+style+".")
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		parts = append(parts, "Additional instructions: "+prompt+".")
	}
	parts = append(parts, "Preserve the product's original shape, texture and branding; natural proportions, no blur, no artifacts.")
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		parts = append(parts, "Compose for a "+aspect+" aspect ratio.")
	}
	if strings.EqualFold(req.Language, "zh") {
		parts = append(parts, "Render any text appearing in the scene in Simplified Chinese.")
	}
	return strings.Join(parts, " ")
}

// variationSuffix differentiates prompts when more than one variation is
// requested so providers do not return near-identical images.
func variationSuffix(instruction string, total, index int) string {
	if total <= 1 {
		return instruction
	}
	return fmt.Sprintf("%s Variation #%d of %d: vary the composition while keeping the product identical.", instruction, index+1, total)
}
