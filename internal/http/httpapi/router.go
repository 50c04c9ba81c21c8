package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

// Options configures the router's middleware stack.
type Options struct {
	Logger          infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
	DefaultLocale   string
}

// NewRouter wires the HTTP surface: edit sessions, generation tasks and
// model templates.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/edit/sessions", func(r chi.Router) {
		r.Post("/", app.EditSessionCreate)
		r.Get("/{session_id}", app.EditSessionInfo)
		r.Delete("/{session_id}", app.EditCancel)
		r.Post("/{session_id}/apply", app.EditApply)
		r.Post("/{session_id}/undo", app.EditUndo)
		r.Post("/{session_id}/redo", app.EditRedo)
		r.Post("/{session_id}/save", app.EditSave)
		r.Get("/{session_id}/current", app.EditCurrentImage)
		r.Get("/{session_id}/original", app.EditOriginalImage)
	})

	r.Route("/v1/photos", func(r chi.Router) {
		r.Post("/generate", app.PhotosGenerate)
		r.Post("/retry", app.PhotosRetry)
		r.Get("/providers", app.PhotosProviders)
		r.Get("/tasks/{task_id}", app.PhotosTaskStatus)
		r.Get("/tasks/{task_id}/events", app.PhotosTaskEvents)
		r.Delete("/tasks/{task_id}", app.PhotosTaskCleanup)
		r.Get("/tasks/{task_id}/download", app.PhotosDownload)
		r.Get("/images/{task_id}/{filename}", app.PhotosImage)
	})

	r.Route("/v1/templates", func(r chi.Router) {
		r.Post("/", app.TemplateCreate)
		r.Get("/", app.TemplateList)
		r.Get("/{template_id}", app.TemplateInfo)
		r.Get("/{template_id}/info", app.TemplateInfo)
		r.Put("/{template_id}", app.TemplateUpdate)
		r.Delete("/{template_id}", app.TemplateDelete)
		r.Get("/{template_id}/image", app.TemplateImage)
		r.Get("/{template_id}/thumbnail", app.TemplateThumbnail)
	})

	return r
}
