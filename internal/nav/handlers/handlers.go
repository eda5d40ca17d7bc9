// Package handlers is the HTTP layer for the NAV engine.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/idempotency"
	"github.com/aristath/backoffice/internal/ledgermath"
	"github.com/aristath/backoffice/internal/nav"
)

const dateLayout = "2006-01-02"

// Handler serves the /nav HTTP surface.
type Handler struct {
	svc   *nav.Service
	idemp *idempotency.Store
	log   zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc *nav.Service, idemp *idempotency.Store, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, idemp: idemp, log: log.With().Str("component", "nav_handlers").Logger()}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func parsePortfolioID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "portfolio_id"), 10, 64)
}

// lineItem is the wire shape of one per-instrument valuation row.
type lineItem struct {
	InstrumentID  int64  `json:"instrument_id"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price"`
	FXRate        string `json:"fx_rate"`
	MarketValueRC string `json:"market_value_rc"`
}

func toLineItems(items []domain.NAVLineItem) []lineItem {
	out := make([]lineItem, 0, len(items))
	for _, it := range items {
		out = append(out, lineItem{
			InstrumentID:  it.InstrumentID,
			Quantity:      ledgermath.Canonical(it.Quantity.Decimal),
			Price:         ledgermath.Canonical(it.Price.Decimal),
			FXRate:        ledgermath.Canonical(it.FXRate.Decimal),
			MarketValueRC: ledgermath.Canonical(it.MarketValueRC.Decimal),
		})
	}
	return out
}

// HandleIBOR implements GET /nav/ibor/{portfolio_id}.
func (h *Handler) HandleIBOR(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	reportCurrency, err := h.svc.PortfolioReportCurrency(r.Context(), portfolioID)
	if err != nil {
		apierr.Write(w, apierr.New("portfolio_not_found"))
		return
	}

	asofTS := time.Now().UTC()
	val, err := h.svc.ComputeIBOR(r.Context(), portfolioID, reportCurrency, asofTS)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"valuation_basis": "IBOR",
		"run_type":        string(domain.NAVRealtime),
		"portfolio_id":    portfolioID,
		"asof_ts":         asofTS,
		"report_currency": reportCurrency,
		"nav_rc":          ledgermath.Canonical(val.NAVRC),
		"line_items":      toLineItems(val.LineItems),
	})
}

type snapshotResponse struct {
	NavRunID int64 `json:"nav_run_id"`
}

// HandleIBORSnapshot implements POST /nav/ibor/{portfolio_id}/snapshot,
// honoring an optional Idempotency-Key under scope
// "api:ibor_snapshot:{portfolio_id}" with the standard get/claim/get
// double-check so a retried request returns the original nav_run_id.
func (h *Handler) HandleIBORSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	ctx := r.Context()

	scope := fmt.Sprintf("api:ibor_snapshot:%d", portfolioID)
	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if cached, ok, err := h.idemp.GetResponse(ctx, scope, key); err == nil && ok {
			h.writeRaw(w, cached)
			return
		}
		hash, err := idempotency.HashPayload(map[string]int64{"portfolio_id": portfolioID})
		if err != nil {
			apierr.Write(w, err)
			return
		}
		won, err := h.idemp.Claim(ctx, scope, key, hash)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if !won {
			if cached, ok, err := h.idemp.GetResponse(ctx, scope, key); err == nil && ok {
				h.writeRaw(w, cached)
				return
			}
		}
	}

	reportCurrency, err := h.svc.PortfolioReportCurrency(ctx, portfolioID)
	if err != nil {
		apierr.Write(w, apierr.New("portfolio_not_found"))
		return
	}

	asofTS := time.Now().UTC()
	runID, err := h.svc.SnapshotIBOR(ctx, portfolioID, reportCurrency, asofTS, scope, key)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	resp := snapshotResponse{NavRunID: runID}
	if key != "" {
		_ = h.idemp.StoreResponse(ctx, scope, key, resp)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type aborRunRequest struct {
	AsofDate string `json:"asof_date"`
}

// HandleABORRun implements POST /nav/abor/{portfolio_id}/run.
func (h *Handler) HandleABORRun(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	var req aborRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	asofDate, err := time.Parse(dateLayout, req.AsofDate)
	if err != nil {
		apierr.Write(w, apierr.Invalid("asof_date"))
		return
	}
	reportCurrency, err := h.svc.PortfolioReportCurrency(r.Context(), portfolioID)
	if err != nil {
		apierr.Write(w, apierr.New("portfolio_not_found"))
		return
	}

	if _, err := h.svc.RunABOR(r.Context(), portfolioID, reportCurrency, asofDate); err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"workflow_id": fmt.Sprintf("abor-%d-%s", portfolioID, asofDate.Format(dateLayout)),
		"run_id":      uuid.NewString(),
	})
}

// HandleABORResult implements GET /nav/abor/{portfolio_id}/result?asof_date=YYYY-MM-DD.
func (h *Handler) HandleABORResult(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	asofDate, err := time.Parse(dateLayout, r.URL.Query().Get("asof_date"))
	if err != nil {
		apierr.Write(w, apierr.Invalid("asof_date"))
		return
	}

	runID, navRC, err := h.svc.GetABORResult(r.Context(), portfolioID, asofDate)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"nav_run_id": runID,
		"nav_rc":     ledgermath.Canonical(navRC),
	})
}

type recordExternalNAVRequest struct {
	AsofDate    string          `json:"asof_date"`
	ExternalNAV decimal.Decimal `json:"external_nav"`
	Source      string          `json:"source"`
}

// HandleRecordExternalNAV implements POST /nav/abor/{portfolio_id}/external,
// the ingestion point for custodian-supplied NAV figures used by the
// reconciliation endpoint.
func (h *Handler) HandleRecordExternalNAV(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	var req recordExternalNAVRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}
	asofDate, err := time.Parse(dateLayout, req.AsofDate)
	if err != nil {
		apierr.Write(w, apierr.Invalid("asof_date"))
		return
	}
	if req.Source == "" {
		apierr.Write(w, apierr.Invalid("source"))
		return
	}
	if err := h.svc.RecordExternalNAV(r.Context(), portfolioID, asofDate, req.ExternalNAV, req.Source); err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReconcile implements GET /nav/abor/{portfolio_id}/reconcile?asof_date=YYYY-MM-DD,
// comparing the persisted ABOR run against a previously recorded external NAV.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := parsePortfolioID(r)
	if err != nil {
		apierr.Write(w, apierr.Invalid("portfolio_id"))
		return
	}
	asofDate, err := time.Parse(dateLayout, r.URL.Query().Get("asof_date"))
	if err != nil {
		apierr.Write(w, apierr.Invalid("asof_date"))
		return
	}
	result, err := h.svc.Reconcile(r.Context(), portfolioID, asofDate)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"portfolio_id":    result.PortfolioID,
		"asof_date":       result.AsofDate,
		"internal_nav_rc": ledgermath.Canonical(result.InternalNAVRC),
		"external_nav":    ledgermath.Canonical(result.ExternalNAV),
		"difference":      ledgermath.Canonical(result.Difference),
	})
}
