package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inkflow/internal/http/handlers"
	custommw "inkflow/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		custommw.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.JobsCreate)
		r.Get("/", app.JobsList)
		r.Get("/{id}", app.JobsGet)
		r.Put("/{id}", app.JobsUpdate)
		r.Post("/{id}/toggle", app.JobsToggle)
		r.Delete("/{id}", app.JobsDelete)
	})

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.BatchesCreate)
		r.Get("/", app.BatchesList)
		r.Get("/{id}", app.BatchesGet)
		r.Post("/{id}/cancel", app.BatchesCancel)
		r.Delete("/{id}", app.BatchesDelete)
	})

	return r
}
