// Package handlers is the HTTP layer for the corporate-action engine: a
// Handler struct holding dependencies plus a zerolog logger, one chi
// sub-router, and a shared JSON response helper.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/corpaction"
)

// Handler serves the corporate-actions HTTP surface.
type Handler struct {
	svc *corpaction.Service
	log zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc *corpaction.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "corpaction_handlers").Logger()}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func parseID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

// HandleCreate implements POST /corporate-actions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req corpaction.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	resp, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGet implements GET /corporate-actions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	resp, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleElect implements POST /corporate-actions/{id}/elections.
func (h *Handler) HandleElect(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	var req corpaction.ElectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	if err := h.svc.Elect(r.Context(), id, req); err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleProcess implements POST /corporate-actions/{id}/process.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	resp, err := h.svc.ProcessEvent(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
