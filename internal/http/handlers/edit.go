package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/mask"
	"server/internal/middleware"
)

type createSessionRequest struct {
	TaskID     string `json:"task_id"`
	ImageIndex int    `json:"image_index"`
	TemplateID string `json:"template_id"`
	// Image lets clients open a session on an uploaded image instead of a
	// generation task result. Base64, with or without a data-URL prefix.
	Image string `json:"image"`
}

type sessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Session   any    `json:"session,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// EditSessionCreate opens an edit session on a task image or an uploaded one.
func (a *App) EditSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	var source []byte
	switch {
	case req.Image != "":
		data, err := parseImageData(req.Image)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "image is not valid base64")
			return
		}
		source = data
	case req.TaskID != "":
		if req.ImageIndex < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "image_index must not be negative")
			return
		}
		data, err := a.Photos.Image(r.Context(), req.TaskID, fmt.Sprintf("%d.png", req.ImageIndex))
		if err != nil {
			a.domainError(w, err)
			return
		}
		source = data
	case req.TemplateID != "":
		data, err := a.Templates.Image(r.Context(), req.TemplateID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		source = data
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "task_id, template_id or image is required")
		return
	}

	info, err := a.Edits.Create(source, middleware.RequestIDFromContext(r.Context()))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, sessionResponse{Success: true, SessionID: info.ID, Session: info})
}

// EditSessionInfo returns the session's navigation snapshot.
func (a *App) EditSessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	info, err := a.Edits.Info(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{Success: true, Session: info})
}

type applyEditRequest struct {
	Instruction string `json:"instruction"`
	Mask        string `json:"mask"`
}

// EditApply runs one edit instruction against the session's current image.
func (a *App) EditApply(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	var req applyEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	var region *mask.Bitmap
	if req.Mask != "" {
		maskPNG, err := parseImageData(req.Mask)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "mask is not valid base64")
			return
		}
		region, err = mask.DecodePNG(maskPNG)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "mask is not a valid PNG")
			return
		}
	}

	info, err := a.Edits.ApplyEdit(r.Context(), sessionID, req.Instruction, region)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{
		Success:  true,
		Session:  info,
		ImageURL: currentImageURL(sessionID),
	})
}

// EditUndo steps the session one entry back.
func (a *App) EditUndo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	_, info, err := a.Edits.Undo(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{Success: true, Session: info, ImageURL: currentImageURL(sessionID)})
}

// EditRedo steps the session one entry forward without re-running the edit.
func (a *App) EditRedo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	_, info, err := a.Edits.Redo(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{Success: true, Session: info, ImageURL: currentImageURL(sessionID)})
}

// EditSave commits the session's current image as the durable result and
// closes the session.
func (a *App) EditSave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	result, err := a.Edits.Save(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	key, err := a.Store.Write(r.Context(), "edits/edit_"+sessionID+".png", result)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "image_key": key})
}

// EditCancel discards the session and all of its history.
func (a *App) EditCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := a.Edits.Cancel(sessionID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

// EditCurrentImage serves the session's current image.
func (a *App) EditCurrentImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	data, err := a.Edits.Current(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.image(w, "image/png", data)
}

// EditOriginalImage serves the immutable source image of the session.
func (a *App) EditOriginalImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	data, err := a.Edits.Original(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.image(w, "image/png", data)
}

func currentImageURL(sessionID string) string {
	return "/v1/edit/sessions/" + sessionID + "/current"
}

// parseImageData decodes base64 image payloads, tolerating data-URL prefixes.
func parseImageData(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
}
