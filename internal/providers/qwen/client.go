package qwen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the DashScope multimodal generation API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// EditRequest captures the inputs for an image-edit call. The image and the
// optional mask travel as base64 data URLs.
type EditRequest struct {
	Image       []byte
	MIMEType    string
	Mask        []byte
	Instruction string
	RequestID   string
}

// ImageAsset is the normalized result from the Qwen API.
type ImageAsset struct {
	Data   []byte
	Format string
}

type generationRequest struct {
	Model string          `json:"model"`
	Input generationInput `json:"input"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "qwen-image-edit"
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

// EditImage applies an edit instruction to the provided image. DashScope
// answers with a URL per result image; the client downloads it and returns
// the raw bytes.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*ImageAsset, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("qwen: image is required")
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("qwen: instruction is required")
	}

	content := []generationContent{{Image: dataURL(req.Image, req.MIMEType)}}
	if len(req.Mask) > 0 {
		content = append(content, generationContent{Image: dataURL(req.Mask, "image/png")})
		instruction = "Only change the area marked white in the second image (the mask); keep everything else identical. " + instruction
	}
	content = append(content, generationContent{Text: instruction})

	payload := generationRequest{
		Model: c.model,
		Input: generationInput{Messages: []generationMessage{{Role: "user", Content: content}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: call api: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(started)).
			Msg("qwen multimodal generation")
	}

	var parsed generationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Code != "" {
		if parsed.Message != "" {
			return nil, fmt.Errorf("qwen: api error %s: %s", parsed.Code, parsed.Message)
		}
		return nil, fmt.Errorf("qwen: api error %d", resp.StatusCode)
	}
	for _, choice := range parsed.Output.Choices {
		for _, part := range choice.Message.Content {
			if part.Image == "" {
				continue
			}
			return c.fetchResult(ctx, part.Image)
		}
	}
	return nil, fmt.Errorf("qwen: response contained no image")
}

// fetchResult downloads a result image. Data URLs are decoded in place.
func (c *Client) fetchResult(ctx context.Context, ref string) (*ImageAsset, error) {
	if strings.HasPrefix(ref, "data:") {
		idx := strings.Index(ref, ",")
		if idx < 0 {
			return nil, fmt.Errorf("qwen: malformed data url in response")
		}
		data, err := base64.StdEncoding.DecodeString(ref[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("qwen: decode data url: %w", err)
		}
		return &ImageAsset{Data: data, Format: "image/png"}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen: download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qwen: download result: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("qwen: read result: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return &ImageAsset{Data: data, Format: format}, nil
}

func dataURL(data []byte, mime string) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
