package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// TemplateCreate stores a new model template from a multipart upload.
func (a *App) TemplateCreate(w http.ResponseWriter, r *http.Request) {
	name, image, metadata, err := parseTemplateUpload(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id, err := a.Templates.Save(r.Context(), name, image, metadata)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"success": true, "template_id": id})
}

// TemplateList returns every template, newest first.
func (a *App) TemplateList(w http.ResponseWriter, r *http.Request) {
	infos, err := a.Templates.List(r.Context())
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "templates": infos})
}

// TemplateInfo returns one template's summary record.
func (a *App) TemplateInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.Templates.GetInfo(r.Context(), chi.URLParam(r, "template_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "template": info})
}

// TemplateImage serves the full-size template image.
func (a *App) TemplateImage(w http.ResponseWriter, r *http.Request) {
	data, err := a.Templates.Image(r.Context(), chi.URLParam(r, "template_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.image(w, "image/png", data)
}

// TemplateThumbnail serves the template thumbnail, falling back to the full
// image when no thumbnail exists.
func (a *App) TemplateThumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := a.Templates.Thumbnail(r.Context(), chi.URLParam(r, "template_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.image(w, "image/jpeg", data)
}

type templateUpdateRequest struct {
	Name     *string         `json:"name"`
	Metadata json.RawMessage `json:"metadata"`
}

// TemplateUpdate changes a template's name and/or metadata.
func (a *App) TemplateUpdate(w http.ResponseWriter, r *http.Request) {
	var req templateUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == nil && req.Metadata == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "nothing to update")
		return
	}
	if err := a.Templates.Update(r.Context(), chi.URLParam(r, "template_id"), req.Name, req.Metadata); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

// TemplateDelete removes a template and its blobs.
func (a *App) TemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Templates.Delete(r.Context(), chi.URLParam(r, "template_id")); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

func parseTemplateUpload(r *http.Request) (string, []byte, json.RawMessage, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return "", nil, nil, errBadUpload("invalid multipart form")
		}
		name := r.FormValue("name")
		var metadata json.RawMessage
		if v := r.FormValue("metadata"); v != "" {
			if !json.Valid([]byte(v)) {
				return "", nil, nil, errBadUpload("metadata must be valid JSON")
			}
			metadata = json.RawMessage(v)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return "", nil, nil, errBadUpload("image file is required")
		}
		defer file.Close()
		image, err := io.ReadAll(file)
		if err != nil {
			return "", nil, nil, errBadUpload("read image")
		}
		return name, image, metadata, nil
	}

	var payload struct {
		Name     string          `json:"name"`
		Image    string          `json:"image"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", nil, nil, errBadUpload("invalid payload")
	}
	image, err := parseImageData(payload.Image)
	if err != nil {
		return "", nil, nil, errBadUpload("image is not valid base64")
	}
	return payload.Name, image, payload.Metadata, nil
}

type errBadUpload string

func (e errBadUpload) Error() string { return string(e) }
