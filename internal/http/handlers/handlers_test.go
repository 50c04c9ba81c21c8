package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/editsession"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/mask"
	"server/internal/productgen"
	"server/internal/productphoto"
	"server/internal/storage"
)

type stubGenerator struct {
	mu       sync.Mutex
	requests []productgen.Request
	image    []byte
	err      error
}

func (g *stubGenerator) Generate(ctx context.Context, req productgen.Request) ([]productgen.Result, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return []productgen.Result{{Image: g.image, Format: "png", Provider: g.Name()}}, nil
}

func (g *stubGenerator) Capabilities() productgen.Capabilities {
	return productgen.Capabilities{BackgroundChange: true}
}

func (g *stubGenerator) Name() string { return "stub" }

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	server    *httptest.Server
	generator *stubGenerator
}

func newTestEnv(t *testing.T, editor editsession.Editor) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	directory := editsession.NewDirectory(editsession.DirectoryOptions{
		TTL:    time.Hour,
		Logger: logger,
	})
	if editor == nil {
		editor = editsession.EditorFunc(func(ctx context.Context, img []byte, instruction string, region *mask.Bitmap) ([]byte, error) {
			return append([]byte("edited:"), img...), nil
		})
	}
	edits := editsession.NewService(directory, editor, editsession.ServiceOptions{
		Timeout:     time.Second,
		VerifyMasks: true,
		Logger:      logger,
	})
	generator := &stubGenerator{image: testPNG(t)}
	photos := productphoto.NewService(generator, store, productphoto.Options{
		Sleep:  func(ctx context.Context, d time.Duration) error { return nil },
		Logger: logger,
	})

	app := &handlers.App{
		Logger:    logger,
		Edits:     edits,
		Photos:    photos,
		Providers: &productgen.FileConfig{Providers: map[string]productgen.ProviderConfig{}},
		Store:     store,
	}
	router := httpapi.NewRouter(app, httpapi.Options{Logger: logger, DefaultLocale: "en"})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, generator: generator}
}

func (e *testEnv) postJSON(t *testing.T, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/v1/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestEditSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	source := []byte("source-image-bytes")

	resp := env.postJSON(t, "/v1/edit/sessions", map[string]any{
		"image": base64.StdEncoding.EncodeToString(source),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, resp, &created)
	if !created.Success || created.SessionID == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}
	sid := created.SessionID

	resp = env.postJSON(t, "/v1/edit/sessions/"+sid+"/apply", map[string]any{
		"instruction": "brighten the background",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply status = %d, want 200", resp.StatusCode)
	}
	var applied struct {
		Success  bool   `json:"success"`
		ImageURL string `json:"image_url"`
		Session  struct {
			CanUndo bool `json:"can_undo"`
			CanRedo bool `json:"can_redo"`
		} `json:"session"`
	}
	decodeJSON(t, resp, &applied)
	if !applied.Session.CanUndo || applied.Session.CanRedo {
		t.Fatalf("after apply: can_undo=%v can_redo=%v", applied.Session.CanUndo, applied.Session.CanRedo)
	}
	if applied.ImageURL == "" {
		t.Fatal("apply response missing image_url")
	}

	resp = env.get(t, "/v1/edit/sessions/"+sid+"/current")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current status = %d, want 200", resp.StatusCode)
	}
	current := readAll(t, resp)
	if !bytes.HasPrefix(current, []byte("edited:")) {
		t.Fatalf("current image = %q, want edited bytes", current)
	}

	resp = env.postJSON(t, "/v1/edit/sessions/"+sid+"/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get(t, "/v1/edit/sessions/"+sid+"/current")
	if got := readAll(t, resp); !bytes.Equal(got, source) {
		t.Fatalf("after undo current = %q, want source", got)
	}

	resp = env.postJSON(t, "/v1/edit/sessions/"+sid+"/redo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redo status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/v1/edit/sessions/"+sid+"/save", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d, want 200", resp.StatusCode)
	}
	var saved struct {
		Success  bool   `json:"success"`
		ImageKey string `json:"image_key"`
	}
	decodeJSON(t, resp, &saved)
	if saved.ImageKey == "" {
		t.Fatal("save response missing image_key")
	}

	// A saved session is gone, not missing.
	resp = env.get(t, "/v1/edit/sessions/"+sid)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("info after save status = %d, want 410", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEditSessionNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/v1/edit/sessions/nonexistent")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEditSessionCreateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.postJSON(t, "/v1/edit/sessions", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEditApplyCapabilityFailure(t *testing.T) {
	editor := editsession.EditorFunc(func(ctx context.Context, img []byte, instruction string, region *mask.Bitmap) ([]byte, error) {
		return nil, fmt.Errorf("model rejected the request")
	})
	env := newTestEnv(t, editor)

	resp := env.postJSON(t, "/v1/edit/sessions", map[string]any{
		"image": base64.StdEncoding.EncodeToString([]byte("img")),
	})
	var created struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, resp, &created)

	resp = env.postJSON(t, "/v1/edit/sessions/"+created.SessionID+"/apply", map[string]any{
		"instruction": "remove the shadow",
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, resp, &body)
	if body.Code != "edit_failed" {
		t.Fatalf("code = %q, want edit_failed", body.Code)
	}
}

func TestPhotosGenerateStreamsEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	model := base64.StdEncoding.EncodeToString(testPNG(t))

	resp := env.postJSON(t, "/v1/photos/generate", map[string]any{
		"model_image":    model,
		"product_images": []string{model},
		"prompt":         "studio product shot",
		"variations":     2,
		"background":     map[string]any{"type": "preset", "preset": "studio"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	body := string(readAll(t, resp))
	for _, event := range []string{"event: start", "event: progress", "event: complete", "event: finish"} {
		if !strings.Contains(body, event) {
			t.Fatalf("stream missing %q:\n%s", event, body)
		}
	}

	taskID := extractTaskID(t, body)
	status := env.get(t, "/v1/photos/tasks/"+taskID)
	if status.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", status.StatusCode)
	}
	var report struct {
		Task struct {
			Status    string   `json:"status"`
			Images    []string `json:"images"`
			Completed int      `json:"completed"`
		} `json:"task"`
	}
	decodeJSON(t, status, &report)
	if report.Task.Status != "completed" || report.Task.Completed != 2 {
		t.Fatalf("task = %+v, want 2 completed", report.Task)
	}

	img := env.get(t, report.Task.Images[0])
	if img.StatusCode != http.StatusOK {
		t.Fatalf("image fetch = %d, want 200", img.StatusCode)
	}
	img.Body.Close()

	env.generator.mu.Lock()
	calls := len(env.generator.requests)
	perCall := 0
	if calls > 0 {
		perCall = env.generator.requests[0].Variations
	}
	env.generator.mu.Unlock()
	if calls != 2 || perCall != 1 {
		t.Fatalf("generator calls = %d (variations %d), want 2 single-variation calls", calls, perCall)
	}
}

func TestPhotosGenerateCarriesLocale(t *testing.T) {
	env := newTestEnv(t, nil)
	model := base64.StdEncoding.EncodeToString(testPNG(t))
	body, err := json.Marshal(map[string]any{
		"model_image":    model,
		"product_images": []string{model},
		"prompt":         "night market scene",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/photos/generate", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Locale", "zh-CN")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST generate: %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	env.generator.mu.Lock()
	defer env.generator.mu.Unlock()
	if len(env.generator.requests) == 0 {
		t.Fatal("generator was never called")
	}
	if lang := env.generator.requests[0].Language; lang != "zh" {
		t.Fatalf("request language = %q, want zh", lang)
	}
}

func TestPhotosGenerateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.postJSON(t, "/v1/photos/generate", map[string]any{
		"prompt": "no model image",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPhotosImageNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/v1/photos/images/product_missing/0.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPhotosProvidersEmptyConfig(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/v1/photos/providers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp, &body)
	if !body.Success {
		t.Fatal("expected success response")
	}
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}

// extractTaskID pulls the task id out of the first SSE data frame.
func extractTaskID(t *testing.T, stream string) string {
	t.Helper()
	for _, line := range strings.Split(stream, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			t.Fatalf("parse event payload: %v", err)
		}
		if payload.TaskID != "" {
			return payload.TaskID
		}
	}
	t.Fatal("no task id in stream")
	return ""
}
