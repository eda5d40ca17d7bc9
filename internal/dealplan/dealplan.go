// Package dealplan implements the deal adjustment planner: given a target
// portfolio->quantity mapping and a block's current active allocations, it
// produces reversal/replacement (modify) or reversal-only (delete) pending
// trades with deterministic ordering, reusing ledgermath's
// residual-redistribution rule.
package dealplan

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
	"github.com/aristath/backoffice/internal/staging"
)

// Planner plans and persists deal modifications/deletions.
type Planner struct {
	repo *staging.Repository
}

// NewPlanner builds a Planner.
func NewPlanner(repo *staging.Repository) *Planner {
	return &Planner{repo: repo}
}

// AllocationInput is one requested target allocation of a modify: an
// absolute quantity for a portfolio. The sign is taken from the block.
type AllocationInput struct {
	PortfolioID int64
	Quantity    decimal.Decimal
}

// AllocationStagingResult mirrors staging.AllocationStagingResult for the
// modify/delete response shape.
type AllocationStagingResult struct {
	PortfolioID int64  `json:"portfolio_id"`
	Quantity    string `json:"quantity"`
	AmountQC    string `json:"amount_qc"`
	StagingID   int64  `json:"staging_id"`
}

// Result is the common response shape for modify/delete.
type Result struct {
	BlockStagingID     int64                     `json:"block_staging_id"`
	DealBlockID        int64                     `json:"deal_block_id"`
	BlockDeltaQuantity string                    `json:"block_delta_quantity"`
	BlockAmountQC      string                    `json:"block_amount_qc"`
	AllocationStagings []AllocationStagingResult `json:"allocation_stagings"`
}

// planLeg is one emitted reversal/replacement pending trade.
type planLeg struct {
	portfolioID int64
	quantity    decimal.Decimal // signed
	source      domain.SourceSystem
}

// Modify plans and persists a force reversal-replacement adjustment:
// current allocations are marked deleted, one reversal pending trade is
// emitted per currently-nonzero portfolio, then one replacement pending
// trade per target-nonzero portfolio. The sign of every target quantity is
// derived from the block's own quantity sign.
func (p *Planner) Modify(ctx context.Context, dealBlockID int64, totalQuantity decimal.Decimal, allocations []AllocationInput) (*Result, error) {
	block, err := p.loadActiveBlock(ctx, dealBlockID)
	if err != nil {
		return nil, err
	}

	if totalQuantity.IsZero() {
		return nil, apierr.New("invalid_total_quantity")
	}
	sign := decimal.NewFromInt(1)
	if block.Quantity.Sign() < 0 {
		sign = decimal.NewFromInt(-1)
	}

	target := map[int64]decimal.Decimal{}
	sumAbs := decimal.Zero
	for _, a := range allocations {
		abs := a.Quantity.Abs()
		if abs.IsZero() {
			return nil, apierr.New("invalid_allocation_quantity")
		}
		sumAbs = sumAbs.Add(abs)
		target[a.PortfolioID] = target[a.PortfolioID].Add(abs.Mul(sign))
	}
	if !sumAbs.Equal(totalQuantity.Abs()) {
		return nil, apierr.New("allocation_quantity_mismatch")
	}
	for pid := range target {
		ok, err := p.repo.PortfolioExists(ctx, pid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apierr.New("portfolio_not_found")
		}
	}

	current, err := p.currentQuantities(ctx, dealBlockID)
	if err != nil {
		return nil, err
	}

	legs := buildModifyLegs(current, target)
	targetTotal := decimal.Zero
	for _, qty := range target {
		targetTotal = targetTotal.Add(qty)
	}
	return p.persistPlan(ctx, block, legs, targetTotal, false)
}

// Delete plans and persists a reversal-only adjustment, marking both the
// allocations and the block lifecycle=deleted and zeroing the block
// quantity.
func (p *Planner) Delete(ctx context.Context, dealBlockID int64) (*Result, error) {
	block, err := p.loadActiveBlock(ctx, dealBlockID)
	if err != nil {
		return nil, err
	}
	current, err := p.currentQuantities(ctx, dealBlockID)
	if err != nil {
		return nil, err
	}
	legs := buildDeleteLegs(current)
	return p.persistPlan(ctx, block, legs, decimal.Zero, true)
}

func (p *Planner) loadActiveBlock(ctx context.Context, dealBlockID int64) (*domain.DealBlock, error) {
	block, err := p.repo.GetDealBlock(ctx, dealBlockID)
	if err != nil {
		if err == staging.ErrNotFound {
			return nil, apierr.New("deal_block_not_found")
		}
		return nil, err
	}
	if block.Lifecycle != domain.LifecycleActive {
		return nil, apierr.New("deal_block_not_active")
	}
	return block, nil
}

func (p *Planner) currentQuantities(ctx context.Context, dealBlockID int64) (map[int64]decimal.Decimal, error) {
	allocs, err := p.repo.ActiveAllocations(ctx, dealBlockID)
	if err != nil {
		return nil, err
	}
	current := map[int64]decimal.Decimal{}
	for _, a := range allocs {
		current[a.PortfolioID] = current[a.PortfolioID].Add(a.Quantity.Decimal)
	}
	return current, nil
}

// buildModifyLegs emits one modify_reversal leg per currently-nonzero
// portfolio, then one modify_replacement leg per target-nonzero portfolio,
// each group in ascending portfolio-id order.
func buildModifyLegs(current, target map[int64]decimal.Decimal) []planLeg {
	var legs []planLeg
	for _, pid := range sortedKeys(current) {
		if qty := current[pid]; !qty.IsZero() {
			legs = append(legs, planLeg{portfolioID: pid, quantity: qty.Neg(), source: domain.SourceModifyReversal})
		}
	}
	for _, pid := range sortedKeys(target) {
		if qty := target[pid]; !qty.IsZero() {
			legs = append(legs, planLeg{portfolioID: pid, quantity: qty, source: domain.SourceModifyReplacement})
		}
	}
	return legs
}

// buildDeleteLegs emits one delete_reversal leg per currently-nonzero
// portfolio, in ascending portfolio-id order.
func buildDeleteLegs(current map[int64]decimal.Decimal) []planLeg {
	var legs []planLeg
	for _, pid := range sortedKeys(current) {
		if qty := current[pid]; !qty.IsZero() {
			legs = append(legs, planLeg{portfolioID: pid, quantity: qty.Neg(), source: domain.SourceDeleteReversal})
		}
	}
	return legs
}

func sortedKeys(m map[int64]decimal.Decimal) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// persistPlan writes the whole adjustment in one transaction: current
// allocations marked deleted, the block row updated to its new quantity
// and lifecycle, one block-level pending trade carrying the plan's summed
// delta, and one deal allocation plus allocation-level pending trade per
// leg. Amounts are computed over the absolute plan deltas with the
// residual-redistribution rule. Reversal legs keep their allocation rows deleted so that
// active allocations always sum to the block quantity.
func (p *Planner) persistPlan(ctx context.Context, block *domain.DealBlock, legs []planLeg, targetTotal decimal.Decimal, markDeleted bool) (*Result, error) {
	price := block.Price.Decimal

	deltaQty := decimal.Zero
	totalAbs := decimal.Zero
	ledgerAllocs := make([]ledgermath.Allocation, len(legs))
	portfolioIDs := make([]int64, len(legs))
	for i, l := range legs {
		deltaQty = deltaQty.Add(l.quantity)
		totalAbs = totalAbs.Add(l.quantity.Abs())
		ledgerAllocs[i] = ledgermath.Allocation{Index: i, Quantity: l.quantity.Abs(), Price: price}
		portfolioIDs[i] = l.portfolioID
	}
	blockAmount, splits := ledgermath.SplitResidual(totalAbs, price, ledgerAllocs)

	reportCcyByPortfolio, err := p.repo.ReportCurrencies(ctx, portfolioIDs)
	if err != nil {
		return nil, err
	}

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := p.repo.MarkAllocationsDeleted(ctx, tx, block.ID); err != nil {
		return nil, err
	}

	blockQuantity := targetTotal
	blockLifecycle := domain.LifecycleActive
	if markDeleted {
		blockQuantity = decimal.Zero
		blockLifecycle = domain.LifecycleDeleted
	}
	newBlockQty := ledgermath.NewDecimal(blockQuantity)
	if err := p.repo.UpdateDealBlock(ctx, tx, block.ID, &newBlockQty, nil, &blockLifecycle); err != nil {
		return nil, err
	}

	blockQC := ledgermath.NewDecimal(blockAmount)
	blockTrade := &domain.PendingTrade{
		Level:          domain.LevelBlock,
		DealBlockID:    &block.ID,
		InstrumentID:   block.InstrumentID,
		TradeDate:      block.TradeDate,
		SettleDate:     block.SettleDate,
		Quantity:       ledgermath.NewDecimal(deltaQty),
		Price:          block.Price,
		QuoteCurrency:  block.TradeCurrency,
		ReportCurrency: block.TradeCurrency,
		QCGrossAmount:  &blockQC,
		RCGrossAmount:  &blockQC,
	}
	blockStagingID, err := p.repo.InsertPendingTrade(ctx, tx, blockTrade)
	if err != nil {
		return nil, err
	}

	results := make([]AllocationStagingResult, len(legs))
	for i, l := range legs {
		source := l.source
		amountQC := ledgermath.NewDecimal(splits[i].Amount)

		reportCcy, ok := reportCcyByPortfolio[l.portfolioID]
		if !ok {
			return nil, apierr.New("portfolio_not_found")
		}

		allocLifecycle := domain.LifecycleActive
		if markDeleted || l.source != domain.SourceModifyReplacement {
			allocLifecycle = domain.LifecycleDeleted
		}
		alloc := &domain.DealAllocation{
			DealBlockID:          block.ID,
			PortfolioID:          l.portfolioID,
			Quantity:             ledgermath.NewDecimal(l.quantity),
			Price:                block.Price,
			IsRoundingAdjustment: splits[i].IsRoundingAdjustment,
			Lifecycle:            allocLifecycle,
		}
		allocID, err := p.repo.InsertDealAllocation(ctx, tx, alloc)
		if err != nil {
			return nil, err
		}

		portfolioID := l.portfolioID
		var rcGross *ledgermath.Decimal
		if block.TradeCurrency == reportCcy {
			rcGross = &amountQC
		}
		allocTrade := &domain.PendingTrade{
			Level:                domain.LevelAllocation,
			DealBlockID:          &block.ID,
			DealAllocationID:     &allocID,
			PortfolioID:          &portfolioID,
			InstrumentID:         block.InstrumentID,
			TradeDate:            block.TradeDate,
			SettleDate:           block.SettleDate,
			Quantity:             ledgermath.NewDecimal(l.quantity),
			Price:                block.Price,
			QuoteCurrency:        block.TradeCurrency,
			ReportCurrency:       reportCcy,
			QCGrossAmount:        &amountQC,
			RCGrossAmount:        rcGross,
			SourceSystem:         &source,
			IsRoundingAdjustment: splits[i].IsRoundingAdjustment,
		}
		allocStagingID, err := p.repo.InsertPendingTrade(ctx, tx, allocTrade)
		if err != nil {
			return nil, err
		}

		results[i] = AllocationStagingResult{
			PortfolioID: l.portfolioID,
			Quantity:    ledgermath.Canonical(l.quantity),
			AmountQC:    ledgermath.Canonical(amountQC.Decimal),
			StagingID:   allocStagingID,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &Result{
		BlockStagingID:     blockStagingID,
		DealBlockID:        block.ID,
		BlockDeltaQuantity: ledgermath.Canonical(deltaQty),
		BlockAmountQC:      ledgermath.Canonical(blockAmount),
		AllocationStagings: results,
	}, nil
}
