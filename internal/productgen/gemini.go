package productgen

import (
	"context"
	"fmt"

	"server/internal/infra"
	"server/internal/mask"
	"server/internal/providers/genai"
)

type geminiClient interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
	EditImage(ctx context.Context, req genai.EditRequest) (*genai.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// GeminiGenerator produces product photos through the Gemini image model. It
// accepts the model photo plus every product image as conditioning input, so
// all capability flags are on.
type GeminiGenerator struct {
	client geminiClient
	logger infra.Logger
}

// NewGeminiGenerator wraps a Gemini client.
func NewGeminiGenerator(client geminiClient, logger infra.Logger) *GeminiGenerator {
	return &GeminiGenerator{client: client, logger: logger}
}

func init() {
	Register("google_genai", func(cfg ProviderConfig, logger infra.Logger) (Generator, error) {
		client, err := genai.NewClient(genai.Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  &logger,
		})
		if err != nil {
			return nil, err
		}
		return NewGeminiGenerator(client, logger), nil
	})
}

// Name implements Generator.
func (g *GeminiGenerator) Name() string { return "google_genai" }

// Capabilities implements Generator.
func (g *GeminiGenerator) Capabilities() Capabilities {
	return Capabilities{
		BackgroundChange: true,
		PoseChange:       true,
		MultiProduct:     true,
		Inpainting:       true,
	}
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) ([]Result, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("productgen: gemini generator not configured")
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	instruction := BuildInstruction(req)
	images := make([][]byte, 0, len(req.ProductImages)+2)
	images = append(images, req.ModelImage)
	images = append(images, req.ProductImages...)
	if req.Background != nil && len(req.Background.CustomImage) > 0 {
		images = append(images, req.Background.CustomImage)
	}

	results := make([]Result, 0, req.Variations)
	for i := 0; i < req.Variations; i++ {
		asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
			Prompt:      variationSuffix(instruction, req.Variations, i),
			Images:      images,
			AspectRatio: req.AspectRatio,
			RequestID:   req.RequestID,
		})
		if err != nil {
			return nil, fmt.Errorf("productgen: gemini variation %d: %w", i+1, err)
		}
		results = append(results, Result{
			Image:    asset.Data,
			Format:   asset.Format,
			Provider: g.Name(),
		})
	}
	return results, nil
}

// Edit applies a masked instruction to an existing image. It satisfies the
// edit-session capability contract: the mask travels as a grayscale PNG and
// pixels outside it must come back unchanged.
func (g *GeminiGenerator) Edit(ctx context.Context, image []byte, instruction string, region *mask.Bitmap) ([]byte, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("productgen: gemini generator not configured")
	}
	req := genai.EditRequest{Image: image, Instruction: instruction}
	if region != nil {
		maskPNG, err := region.EncodePNG()
		if err != nil {
			return nil, err
		}
		req.Mask = maskPNG
	}
	asset, err := g.client.EditImage(ctx, req)
	if err != nil {
		return nil, err
	}
	return asset.Data, nil
}

var _ Generator = (*GeminiGenerator)(nil)
