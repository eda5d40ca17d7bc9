package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the staging-transactions routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/staging-transactions", func(r chi.Router) {
		r.Post("/", h.HandleCreateSingle)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandlePatch)
		r.Post("/{id}/process", h.HandleProcess)

		// PATCH/DELETE take a deal_block_id, process takes the block-level
		// staging id; chi requires one shared param name per segment.
		r.Route("/deals", func(r chi.Router) {
			r.Post("/", h.HandleCreateDeal)
			r.Patch("/{id}", h.HandleModifyDeal)
			r.Delete("/{id}", h.HandleDeleteDeal)
			r.Post("/{id}/process", h.HandleProcessDeal)
		})
	})
}
