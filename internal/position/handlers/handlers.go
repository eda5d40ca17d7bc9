// Package handlers exposes the manual EOD-snapshot trigger.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/position"
)

// Handler wires the position service into chi routes.
type Handler struct {
	svc *position.Service
	log zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc *position.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "position_handlers").Logger()}
}

// RegisterRoutes attaches the internal snapshot endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/internal/position", func(r chi.Router) {
		r.Post("/eod-snapshot", h.HandleEODSnapshot)
	})
}

type snapshotRequest struct {
	AsofDate string `json:"asof_date"`
}

// HandleEODSnapshot manually triggers the EOD position materialization for
// a given date, defaulting to today (UTC) if unspecified.
func (h *Handler) HandleEODSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.Write(w, apierr.New("invalid_request_body"))
			return
		}
	}

	asof := time.Now().UTC().Truncate(24 * time.Hour)
	if req.AsofDate != "" {
		parsed, err := time.Parse("2006-01-02", req.AsofDate)
		if err != nil {
			apierr.Write(w, apierr.Invalid("asof_date"))
			return
		}
		asof = parsed
	}

	rows, err := h.svc.SnapshotEOD(r.Context(), asof)
	if err != nil {
		h.log.Error().Err(err).Msg("eod snapshot failed")
		apierr.Write(w, apierr.New("internal_error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"asof_date": asof.Format("2006-01-02"),
		"rows":      rows,
	})
}
