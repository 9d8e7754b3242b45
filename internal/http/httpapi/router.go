package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// NewRouter assembles the API surface consumed by the browser client.
func NewRouter(app *handlers.App, logger infra.Logger, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.Post("/", app.GenerationsStart)
		r.Get("/", app.GenerationsList)
		r.Get("/{slot_id}", app.GenerationGet)
		r.Post("/{slot_id}/cancel", app.GenerationCancel)
		r.Post("/{slot_id}/retry", app.GenerationRetry)
	})

	r.Route("/v1/references", func(r chi.Router) {
		r.Post("/", app.ReferencesUpload)
		r.Get("/", app.ReferencesList)
	})

	r.Get("/v1/view", app.ViewResolve)
	r.Get("/v1/stats", app.Stats)

	return r
}
