package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the /nav routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/nav", func(r chi.Router) {
		r.Get("/ibor/{portfolio_id}", h.HandleIBOR)
		r.Post("/ibor/{portfolio_id}/snapshot", h.HandleIBORSnapshot)
		r.Post("/abor/{portfolio_id}/run", h.HandleABORRun)
		r.Get("/abor/{portfolio_id}/result", h.HandleABORResult)
		r.Post("/abor/{portfolio_id}/external", h.HandleRecordExternalNAV)
		r.Get("/abor/{portfolio_id}/reconcile", h.HandleReconcile)
	})
}
