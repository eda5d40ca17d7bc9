// Package handlers is the HTTP layer for the pending-trade service: a
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
	"github.com/aristath/backoffice/internal/dealplan"
	"github.com/aristath/backoffice/internal/lifecycle"
	"github.com/aristath/backoffice/internal/staging"
)

// Handler serves the staging-transactions HTTP surface.
type Handler struct {
	svc      *staging.Service
	planner  *dealplan.Planner
	executor *lifecycle.Executor
	log      zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc *staging.Service, planner *dealplan.Planner, executor *lifecycle.Executor, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, planner: planner, executor: executor, log: log.With().Str("component", "staging_handlers").Logger()}
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

// HandleCreateSingle implements POST /staging-transactions.
func (h *Handler) HandleCreateSingle(w http.ResponseWriter, r *http.Request) {
	var req staging.CreateSingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	resp, err := h.svc.CreateSingle(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGet implements GET /staging-transactions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	resp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandlePatch implements PATCH /staging-transactions/{id}.
func (h *Handler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	var req staging.PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	resp, err := h.svc.PatchSingle(r.Context(), id, req, r.Header.Get("X-Actor"), r.Header.Get("X-Change-Reason"))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleProcess implements POST /staging-transactions/{id}/process.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("id"))
		return
	}
	run, err := h.executor.StartStagingWorkflow(r.Context(), id)
	if err != nil {
		apierr.Write(w, apierr.WithTemporalStartFailed("staging"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"workflow_id": run.WorkflowID, "run_id": run.RunID})
}

// HandleCreateDeal implements POST /staging-transactions/deals.
func (h *Handler) HandleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req staging.CreateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	resp, err := h.svc.CreateDeal(r.Context(), req)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
