package productgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"server/internal/infra"
	"server/internal/mask"
	"server/internal/providers/qwen"
)

type qwenClient interface {
	EditImage(ctx context.Context, req qwen.EditRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenGenerator produces product photos through DashScope's Qwen image-edit
// model and falls back to another generator when credentials are missing or
// the remote call fails transiently. Qwen takes a single conditioning image,
// so multi-product and pose control are off; callers see that in the
// capability flags and degrade accordingly.
type QwenGenerator struct {
	client   qwenClient
	fallback Generator
	logger   infra.Logger
}

// NewQwenGenerator wires a Qwen client with an optional fallback generator.
func NewQwenGenerator(client qwenClient, fallback Generator, logger infra.Logger) *QwenGenerator {
	return &QwenGenerator{client: client, fallback: fallback, logger: logger}
}

func init() {
	Register("qwen", func(cfg ProviderConfig, logger infra.Logger) (Generator, error) {
		client, err := qwen.NewClient(qwen.Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  &logger,
		})
		if err != nil {
			return nil, err
		}
		return NewQwenGenerator(client, nil, logger), nil
	})
}

// Name implements Generator.
func (g *QwenGenerator) Name() string { return "qwen" }

// Capabilities implements Generator.
func (g *QwenGenerator) Capabilities() Capabilities {
	return Capabilities{
		BackgroundChange: true,
		PoseChange:       false,
		MultiProduct:     false,
		Inpainting:       true,
	}
}

// Generate implements Generator. The model photo is the edited image and the
// first product is composited in via the instruction.
func (g *QwenGenerator) Generate(ctx context.Context, req Request) ([]Result, error) {
	if g == nil {
		return nil, fmt.Errorf("productgen: qwen generator not configured")
	}
	if g.client == nil || !g.client.HasCredentials() {
		if g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return nil, fmt.Errorf("productgen: qwen generator missing credentials")
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	instruction := BuildInstruction(req)

	results := make([]Result, 0, req.Variations)
	for i := 0; i < req.Variations; i++ {
		asset, err := g.client.EditImage(ctx, qwen.EditRequest{
			Image:       req.ModelImage,
			Instruction: variationSuffix(instruction, req.Variations, i),
			RequestID:   req.RequestID,
		})
		if err != nil {
			if shouldFallback(err) && g.fallback != nil {
				g.logger.Warn().Err(err).Msg("qwen generation failed, using fallback provider")
				return g.fallback.Generate(ctx, req)
			}
			return nil, fmt.Errorf("productgen: qwen variation %d: %w", i+1, err)
		}
		results = append(results, Result{
			Image:    asset.Data,
			Format:   asset.Format,
			Provider: g.Name(),
		})
	}
	return results, nil
}

// Edit applies a masked instruction to an existing image via Qwen.
func (g *QwenGenerator) Edit(ctx context.Context, image []byte, instruction string, region *mask.Bitmap) ([]byte, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("productgen: qwen generator not configured")
	}
	req := qwen.EditRequest{Image: image, Instruction: instruction}
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

func shouldFallback(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, qwen.ErrMissingAPIKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") {
		return true
	}
	return isTransient(msg)
}

func isTransient(msg string) bool {
	if strings.Contains(msg, "internal error") || strings.Contains(msg, "internalerror") {
		return true
	}
	if strings.Contains(msg, "service unavailable") || strings.Contains(msg, "server unavailable") {
		return true
	}
	return strings.Contains(msg, "timeout")
}

var _ Generator = (*QwenGenerator)(nil)
