package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/middleware"
	"server/internal/productgen"
	"server/internal/productphoto"
	"server/pkg/zip"
)

type backgroundPayload struct {
	Type        string `json:"type"`
	Preset      string `json:"preset"`
	CustomImage string `json:"custom_image"`
	Description string `json:"description"`
}

type placementPayload struct {
	Position          string `json:"position"`
	CustomInstruction string `json:"custom_instruction"`
}

type generatePayload struct {
	ModelImage    string             `json:"model_image"`
	ProductImages []string           `json:"product_images"`
	Prompt        string             `json:"prompt"`
	AspectRatio   string             `json:"aspect_ratio"`
	Style         string             `json:"style"`
	Pose          string             `json:"pose"`
	Variations    int                `json:"variations"`
	Background    *backgroundPayload `json:"background"`
	Placement     *placementPayload  `json:"placement"`
}

// PhotosGenerate starts a generation task and streams its progress as
// server-sent events. Both multipart forms and JSON bodies are accepted;
// multipart is what the browser client sends.
func (a *App) PhotosGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := a.parseGenerateRequest(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := req.Normalize(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	taskID := productphoto.NewTaskID()
	stream, err := newSSEWriter(w)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	if err := a.Photos.Generate(r.Context(), taskID, *req, stream.emitEvent); err != nil {
		stream.emitEvent(productphoto.Event{Type: productphoto.EventError, TaskID: taskID, Message: err.Error()})
	}
}

type retryPayload struct {
	TaskID string `json:"task_id"`
	Index  int    `json:"index"`
}

// PhotosRetry regenerates one failed variation, streaming progress as SSE.
func (a *App) PhotosRetry(w http.ResponseWriter, r *http.Request) {
	var req retryPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TaskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id is required")
		return
	}
	stream, err := newSSEWriter(w)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	_ = a.Photos.Retry(r.Context(), req.TaskID, req.Index, stream.emitEvent)
}

// PhotosTaskStatus reports a task's progress and image URLs.
func (a *App) PhotosTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	report, err := a.Photos.Status(r.Context(), taskID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "task": report})
}

// PhotosTaskEvents attaches to a running task's progress stream. Finished
// tasks get a single terminal event so reconnecting clients always resolve.
func (a *App) PhotosTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	report, err := a.Photos.Status(r.Context(), taskID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	stream, err := newSSEWriter(w)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	if report.Status != string(productphoto.StatusPending) && report.Status != string(productphoto.StatusGenerating) {
		stream.emitEvent(productphoto.Event{
			Type:      productphoto.EventFinish,
			TaskID:    taskID,
			Success:   report.Status == string(productphoto.StatusCompleted),
			Images:    report.Images,
			Completed: report.Completed,
			Total:     report.Total,
		})
		return
	}

	events, cancel := a.Photos.Subscribe(taskID)
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			stream.emitEvent(event)
			if event.Type == productphoto.EventFinish {
				return
			}
		}
	}
}

// PhotosTaskCleanup drops a task's in-memory state.
func (a *App) PhotosTaskCleanup(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	cleaned := a.Photos.Cleanup(taskID)
	a.json(w, http.StatusOK, map[string]any{"success": true, "cleaned": cleaned})
}

// PhotosImage serves a generated image. With ?thumbnail=true the stored
// thumbnail is preferred, falling back to the full image.
func (a *App) PhotosImage(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	filename := chi.URLParam(r, "filename")
	if strings.EqualFold(r.URL.Query().Get("thumbnail"), "true") {
		if data, err := a.Photos.Image(r.Context(), taskID, "thumb_"+filename); err == nil {
			a.image(w, "image/jpeg", data)
			return
		}
	}
	data, err := a.Photos.Image(r.Context(), taskID, filename)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.image(w, "image/png", data)
}

// PhotosDownload bundles every full-size task image into a zip archive.
func (a *App) PhotosDownload(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	keys, err := a.Photos.ImageKeys(r.Context(), taskID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if len(keys) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "task has no images")
		return
	}
	assets := make([]zip.Asset, 0, len(keys))
	for _, key := range keys {
		data, err := a.Photos.Store().Read(r.Context(), key)
		if err != nil {
			a.domainError(w, err)
			return
		}
		assets = append(assets, zip.Asset{
			Filename: key[strings.LastIndex(key, "/")+1:],
			MIME:     "image/png",
			Data:     data,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "archive failed")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", taskID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// PhotosProviders lists the configured providers and their capabilities.
func (a *App) PhotosProviders(w http.ResponseWriter, r *http.Request) {
	infos := productgen.ProviderInfos(a.Providers, a.Logger)
	a.json(w, http.StatusOK, map[string]any{"success": true, "providers": infos})
}

func (a *App) parseGenerateRequest(r *http.Request) (*productgen.Request, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err := parseGenerateForm(r)
		if err != nil {
			return nil, err
		}
		req.Language = middleware.LocaleFromContext(r.Context())
		return req, nil
	}
	var payload generatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid payload")
	}
	req := &productgen.Request{
		Prompt:      payload.Prompt,
		AspectRatio: payload.AspectRatio,
		Style:       payload.Style,
		Pose:        payload.Pose,
		Variations:  payload.Variations,
		Language:    middleware.LocaleFromContext(r.Context()),
	}
	if payload.ModelImage != "" {
		data, err := parseImageData(payload.ModelImage)
		if err != nil {
			return nil, fmt.Errorf("model_image is not valid base64")
		}
		req.ModelImage = data
	}
	for i, encoded := range payload.ProductImages {
		data, err := parseImageData(encoded)
		if err != nil {
			return nil, fmt.Errorf("product_images[%d] is not valid base64", i)
		}
		req.ProductImages = append(req.ProductImages, data)
	}
	applyConfigPayloads(req, payload.Background, payload.Placement)
	return req, nil
}

func parseGenerateForm(r *http.Request) (*productgen.Request, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart form")
	}
	req := &productgen.Request{
		Prompt:      r.FormValue("prompt"),
		AspectRatio: r.FormValue("aspect_ratio"),
		Style:       r.FormValue("style"),
		Pose:        r.FormValue("pose"),
	}
	if v := r.FormValue("variations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("variations must be a number")
		}
		req.Variations = n
	}

	if file, _, err := r.FormFile("model_image"); err == nil {
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("read model_image: %w", err)
		}
		req.ModelImage = data
	}
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["product_images"] {
			file, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("open product image: %w", err)
			}
			data, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				return nil, fmt.Errorf("read product image: %w", err)
			}
			req.ProductImages = append(req.ProductImages, data)
		}
	}

	var background *backgroundPayload
	if v := r.FormValue("background"); v != "" {
		background = &backgroundPayload{}
		if err := json.Unmarshal([]byte(v), background); err != nil {
			return nil, fmt.Errorf("background must be valid JSON")
		}
	}
	var placement *placementPayload
	if v := r.FormValue("placement"); v != "" {
		placement = &placementPayload{}
		if err := json.Unmarshal([]byte(v), placement); err != nil {
			return nil, fmt.Errorf("placement must be valid JSON")
		}
	}
	applyConfigPayloads(req, background, placement)
	return req, nil
}

func applyConfigPayloads(req *productgen.Request, background *backgroundPayload, placement *placementPayload) {
	if background != nil {
		cfg := &productgen.Background{
			Type:        productgen.NormalizeBackgroundType(background.Type),
			Preset:      background.Preset,
			Description: background.Description,
		}
		if background.CustomImage != "" {
			if data, err := parseImageData(background.CustomImage); err == nil {
				cfg.CustomImage = data
			}
		}
		req.Background = cfg
	}
	if placement != nil {
		req.Placement = &productgen.Placement{
			Position:          productgen.NormalizePlacement(placement.Position),
			CustomInstruction: placement.CustomInstruction,
		}
	}
}

// sseWriter streams events in text/event-stream framing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) emitEvent(event productphoto.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, payload)
	s.flusher.Flush()
}
