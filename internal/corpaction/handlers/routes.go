package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the corporate-actions routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/corporate-actions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/elections", h.HandleElect)
		r.Post("/{id}/process", h.HandleProcess)
	})
}
