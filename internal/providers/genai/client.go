package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the Gemini generateContent API, covering the
// two calls this service needs: composing a product photo from conditioning
// images and applying a masked edit to an existing image.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest carries the inputs for a generation call. Images are raw
// encoded bytes; the first entry is treated as the primary subject.
type ImageRequest struct {
	Prompt      string
	Images      [][]byte
	MIMETypes   []string
	AspectRatio string
	RequestID   string
}

// EditRequest carries the inputs for an edit call. Mask is an optional PNG
// where white marks the editable region.
type EditRequest struct {
	Image       []byte
	MIMEType    string
	Mask        []byte
	Instruction string
	RequestID   string
}

// ImageAsset is the normalized result of a generation or edit call.
type ImageAsset struct {
	Data   []byte
	Format string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a generous timeout is created.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// GenerateImage produces one image from a prompt plus conditioning images.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("genai: prompt is required")
	}
	parts := []geminiPart{{Text: prompt}}
	for i, img := range req.Images {
		if len(img) == 0 {
			continue
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mimeTypeAt(req.MIMETypes, i),
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}
	return c.generateContent(ctx, parts, req.RequestID)
}

// EditImage applies an instruction to an image. When a mask is present it is
// attached as an additional inline image and the instruction is framed so the
// model only alters the masked region; the caller remains responsible for
// verifying the unmasked pixels.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*ImageAsset, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("genai: image is required")
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("genai: instruction is required")
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	parts := []geminiPart{
		{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
	}
	if len(req.Mask) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(req.Mask),
		}})
		instruction = "Apply the following edit only inside the white region of the second image (a mask); " +
			"leave every pixel outside the mask exactly as it is. Edit: " + instruction
	}
	parts = append(parts, geminiPart{Text: instruction})
	return c.generateContent(ctx, parts, req.RequestID)
}

func (c *Client) generateContent(ctx context.Context, parts []geminiPart, requestID string) (*ImageAsset, error) {
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: 1, ResponseModalities: []string{"IMAGE"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai: call api: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("genai: read response: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug().
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(started)).
			Msg("gemini generateContent")
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr geminiErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("genai: api error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("genai: api error %d", resp.StatusCode)
	}

	var parsed geminiGenerateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("genai: decode response: %w", err)
	}
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("genai: decode image payload: %w", err)
			}
			return &ImageAsset{Data: data, Format: part.InlineData.MimeType}, nil
		}
	}
	return nil, fmt.Errorf("genai: response contained no image")
}

func mimeTypeAt(mimeTypes []string, i int) string {
	if i < len(mimeTypes) && mimeTypes[i] != "" {
		return mimeTypes[i]
	}
	return "image/png"
}
