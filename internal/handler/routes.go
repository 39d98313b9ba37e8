package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes mounts the API on r. limit, when non-nil, wraps the upload
// endpoint only.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(next http.Handler) http.Handler) {
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/resize", h.Resize)
		})
		r.Get("/results/{id}", h.DownloadResult)
		r.Delete("/results/{id}", h.ReleaseResult)
		r.Get("/stats", h.Stats)
	})
}
