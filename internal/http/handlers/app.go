package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/editsession"
	"server/internal/infra"
	"server/internal/productgen"
	"server/internal/productphoto"
	"server/internal/storage"
	"server/internal/template"
)

// App carries the service dependencies the HTTP handlers need.
type App struct {
	Logger    infra.Logger
	Edits     *editsession.Service
	Photos    *productphoto.Service
	Templates *template.Service
	Providers *productgen.FileConfig
	Store     *storage.FileStore
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, errorResponse{Success: false, Code: slug, Error: message})
}

// domainError maps service errors onto HTTP statuses. Expired and closed
// sessions are Gone rather than Not Found so clients can tell a stale
// session id from a wrong one.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, editsession.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, editsession.ErrSessionNotFound),
		errors.Is(err, productphoto.ErrTaskNotFound),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, storage.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, editsession.ErrSessionExpired):
		a.error(w, http.StatusGone, "session_expired", err.Error())
	case errors.Is(err, editsession.ErrSessionClosed):
		a.error(w, http.StatusGone, "session_closed", err.Error())
	case errors.Is(err, editsession.ErrIllegalTransition):
		a.error(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, editsession.ErrOperationInFlight):
		a.error(w, http.StatusTooManyRequests, "operation_in_flight", err.Error())
	case errors.Is(err, editsession.ErrEditFailed):
		a.error(w, http.StatusBadGateway, "edit_failed", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("unhandled service error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) image(w http.ResponseWriter, mime string, data []byte) {
	if mime == "" {
		mime = "image/png"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
