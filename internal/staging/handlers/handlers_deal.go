package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/dealplan"
)

// dealModifyRequest is the body of PATCH /staging-transactions/deals/{id}:
// a new total quantity plus target allocations. Instrument, price, and
// currency are carried by the block itself.
type dealModifyRequest struct {
	Quantity    decimal.Decimal               `json:"quantity"`
	Allocations []dealModifyAllocationRequest `json:"allocations"`
}

type dealModifyAllocationRequest struct {
	PortfolioID int64           `json:"portfolio_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// HandleModifyDeal implements PATCH /staging-transactions/deals/{id}.
func (h *Handler) HandleModifyDeal(w http.ResponseWriter, r *http.Request) {
	blockID, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("deal_block_id"))
		return
	}
	var req dealModifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("body"))
		return
	}

	allocations := make([]dealplan.AllocationInput, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocations = append(allocations, dealplan.AllocationInput{PortfolioID: a.PortfolioID, Quantity: a.Quantity})
	}

	resp, err := h.planner.Modify(r.Context(), blockID, req.Quantity, allocations)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleDeleteDeal implements DELETE /staging-transactions/deals/{id}.
func (h *Handler) HandleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	blockID, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("deal_block_id"))
		return
	}
	resp, err := h.planner.Delete(r.Context(), blockID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// StartedAllocation is one entry of the deal-process response.
type StartedAllocation struct {
	StagingID  int64  `json:"staging_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// HandleProcessDeal implements POST /staging-transactions/deals/{id}/process,
// where {id} is the block-level staging id. It starts one workflow per child
// allocation-level pending trade; the block-level pending trade is not
// itself driven through the workflow.
func (h *Handler) HandleProcessDeal(w http.ResponseWriter, r *http.Request) {
	blockStagingID, err := parseID(r, "id")
	if err != nil {
		apierr.Write(w, apierr.Invalid("block_staging_id"))
		return
	}

	allocationIDs, dealBlockID, err := h.svc.ChildAllocationStagingIDs(r.Context(), blockStagingID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if dealBlockID == 0 {
		apierr.Write(w, apierr.New("block_deal_id_missing"))
		return
	}

	started := make([]StartedAllocation, 0, len(allocationIDs))
	for _, id := range allocationIDs {
		run, err := h.executor.StartStagingWorkflow(r.Context(), id)
		if err != nil {
			apierr.Write(w, apierr.WithTemporalStartFailed("deal"))
			return
		}
		started = append(started, StartedAllocation{StagingID: id, WorkflowID: run.WorkflowID, RunID: run.RunID})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"block_staging_id": blockStagingID,
		"deal_block_id":    dealBlockID,
		"started":          started,
	})
}
