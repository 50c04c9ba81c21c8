package productgen

import (
	"context"
	"fmt"
	"strings"
)

// BackgroundType enumerates how the scene background is sourced.
type BackgroundType string

const (
	BackgroundPreset      BackgroundType = "preset"
	BackgroundCustom      BackgroundType = "custom"
	BackgroundDescription BackgroundType = "description"
	BackgroundOriginal    BackgroundType = "original"
)

// PlacementPosition enumerates where the product sits on the model.
type PlacementPosition string

const (
	PlacementAuto      PlacementPosition = "auto"
	PlacementLeftHand  PlacementPosition = "left_hand"
	PlacementRightHand PlacementPosition = "right_hand"
	PlacementShoulder  PlacementPosition = "shoulder"
	PlacementChest     PlacementPosition = "chest"
	PlacementWaist     PlacementPosition = "waist"
)

// Background configures the scene behind the model.
type Background struct {
	Type        BackgroundType
	Preset      string
	CustomImage []byte
	Description string
}

// Placement configures where the product goes.
type Placement struct {
	Position          PlacementPosition
	CustomInstruction string
}

// Request is a normalized product-photo generation request. The model image is
// the primary conditioning input; product images follow in order.
type Request struct {
	ModelImage    []byte
	ProductImages [][]byte
	Prompt        string
	AspectRatio   string
	Style         string
	Background    *Background
	Placement     *Placement
	Pose          string
	Variations    int
	// Language is the caller's locale ("en", "zh") and steers the language of
	// any text the provider renders into the scene.
	Language  string
	RequestID string
}

// Normalize validates the request and clamps free-form fields to supported
// ranges. Variations outside [1,4] are clamped rather than rejected.
func (r *Request) Normalize() error {
	if len(r.ModelImage) == 0 {
		return fmt.Errorf("productgen: model image is required")
	}
	if len(r.ProductImages) == 0 {
		return fmt.Errorf("productgen: at least one product image is required")
	}
	if r.AspectRatio == "" {
		r.AspectRatio = "3:4"
	}
	if strings.TrimSpace(r.Style) == "" {
		r.Style = "natural"
	}
	if r.Variations < 1 {
		r.Variations = 1
	}
	if r.Variations > 4 {
		r.Variations = 4
	}
	return nil
}

// Result is one generated product photo.
type Result struct {
	Image    []byte
	Format   string
	Provider string
}

// Capabilities flags what a provider can do. Callers use these to degrade
// gracefully instead of sending requests a provider cannot honor.
type Capabilities struct {
	BackgroundChange bool `json:"background_change"`
	PoseChange       bool `json:"pose_change"`
	MultiProduct     bool `json:"multi_product"`
	Inpainting       bool `json:"inpainting"`
}

// Generator is the contract implemented by all product-photo providers. One
// result is returned per requested variation.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Result, error)
	Capabilities() Capabilities
	Name() string
}

// ProviderInfo describes a registered provider for discovery endpoints.
type ProviderInfo struct {
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	Capabilities Capabilities `json:"features"`
	AspectRatios []string     `json:"aspect_ratios"`
}

// NormalizePlacement sanitizes free-form input into a supported position.
func NormalizePlacement(position string) PlacementPosition {
	switch PlacementPosition(strings.ToLower(strings.TrimSpace(position))) {
	case PlacementLeftHand:
		return PlacementLeftHand
	case PlacementRightHand:
		return PlacementRightHand
	case PlacementShoulder:
		return PlacementShoulder
	case PlacementChest:
		return PlacementChest
	case PlacementWaist:
		return PlacementWaist
	default:
		return PlacementAuto
	}
}

// NormalizeBackgroundType sanitizes free-form input into a supported source.
func NormalizeBackgroundType(kind string) BackgroundType {
	switch BackgroundType(strings.ToLower(strings.TrimSpace(kind))) {
	case BackgroundPreset:
		return BackgroundPreset
	case BackgroundCustom:
		return BackgroundCustom
	case BackgroundDescription:
		return BackgroundDescription
	default:
		return BackgroundOriginal
	}
}
