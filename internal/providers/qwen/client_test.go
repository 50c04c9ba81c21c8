package qwen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEditImageRequiresCredentials(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.EditImage(context.Background(), EditRequest{Image: []byte("img"), Instruction: "brighten"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestEditImageDecodesDataURLResult(t *testing.T) {
	resultBytes := []byte{137, 80, 78, 71, 1, 2, 3}
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{
						"content": []map[string]any{{
							"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(resultBytes),
						}},
					},
				}},
			},
			"request_id": "req-1",
		})
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: server.URL, Model: "qwen-image-edit"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	asset, err := client.EditImage(context.Background(), EditRequest{
		Image:       []byte("source"),
		Instruction: "remove the shadow",
	})
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	if string(asset.Data) != string(resultBytes) {
		t.Fatalf("result bytes mismatch: %v", asset.Data)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header mismatch: %q", gotAuth)
	}
	if gotBody["model"] != "qwen-image-edit" {
		t.Fatalf("model mismatch in payload: %v", gotBody["model"])
	}
}

func TestEditImageMaskFramesInstruction(t *testing.T) {
	var gotBody generationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{
						"content": []map[string]any{{"image": "data:image/png;base64,AA=="}},
					},
				}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.EditImage(context.Background(), EditRequest{
		Image:       []byte("source"),
		Mask:        []byte("mask"),
		Instruction: "recolor the bag",
	})
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	content := gotBody.Input.Messages[0].Content
	if len(content) != 3 {
		t.Fatalf("expected image+mask+text content, got %d parts", len(content))
	}
	if !strings.Contains(content[2].Text, "mask") {
		t.Fatalf("instruction should reference the mask: %q", content[2].Text)
	}
	if !strings.Contains(content[2].Text, "recolor the bag") {
		t.Fatalf("instruction should carry the caller text: %q", content[2].Text)
	}
}

func TestEditImageSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "InvalidParameter",
			"message": "image too large",
		})
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.EditImage(context.Background(), EditRequest{Image: []byte("x"), Instruction: "edit"})
	if err == nil || !strings.Contains(err.Error(), "image too large") {
		t.Fatalf("expected api error with message, got %v", err)
	}
}
