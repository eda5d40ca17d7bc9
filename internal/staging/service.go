package staging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/idempotency"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// Service implements the create, patch, and deal-creation contracts of
// the pending-trade API.
type Service struct {
	repo  *Repository
	idemp *idempotency.Store
}

// NewService builds a Service.
func NewService(repo *Repository, idemp *idempotency.Store) *Service {
	return &Service{repo: repo, idemp: idemp}
}

// CreateSingleRequest is the body of POST /staging-transactions.
type CreateSingleRequest struct {
	Level          domain.StagingLevel `json:"level"`
	PortfolioID    *int64              `json:"portfolio_id"`
	InstrumentID   int64               `json:"instrument_id"`
	TradeDate      time.Time           `json:"trade_date"`
	SettleDate     *time.Time          `json:"settle_date"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Price          decimal.Decimal     `json:"price"`
	QuoteCurrency  string              `json:"quote_currency"`
	ReportCurrency string              `json:"report_currency"`
}

// StagingResponse is the common response shape for single-staging endpoints.
type StagingResponse struct {
	ID           int64                 `json:"id"`
	Status       domain.StagingStatus  `json:"status"`
	Lifecycle    domain.Lifecycle      `json:"lifecycle"`
	EntryVersion int64                 `json:"entry_version"`
}

// CreateSingle validates and persists a single pending trade, honoring an
// optional Idempotency-Key under scope "api:create_staging".
func (s *Service) CreateSingle(ctx context.Context, req CreateSingleRequest, idempotencyKey string) (*StagingResponse, error) {
	if err := s.validateCreate(ctx, req); err != nil {
		return nil, err
	}

	const scope = "api:create_staging"
	if idempotencyKey != "" {
		if cached, ok, err := s.idemp.GetResponse(ctx, scope, idempotencyKey); err == nil && ok {
			var resp StagingResponse
			if jsonUnmarshal(cached, &resp) == nil {
				return &resp, nil
			}
		}
		hash, err := idempotency.HashPayload(req)
		if err != nil {
			return nil, err
		}
		won, err := s.idemp.Claim(ctx, scope, idempotencyKey, hash)
		if err != nil {
			return nil, err
		}
		if !won {
			if cached, ok, err := s.idemp.GetResponse(ctx, scope, idempotencyKey); err == nil && ok {
				var resp StagingResponse
				if jsonUnmarshal(cached, &resp) == nil {
					return &resp, nil
				}
			}
			// Winner hasn't stored yet; fall through and re-execute. The
			// later storeResponse resolves the race last-write-wins.
		}
	}

	gross := ledgermath.GrossAmount(req.Quantity, req.Price)
	qc := ledgermath.NewDecimal(gross)
	var rc *ledgermath.Decimal
	if req.QuoteCurrency == req.ReportCurrency {
		rc = &qc
	}

	t := &domain.PendingTrade{
		Level:          req.Level,
		PortfolioID:    req.PortfolioID,
		InstrumentID:   req.InstrumentID,
		TradeDate:      req.TradeDate,
		SettleDate:     req.SettleDate,
		Quantity:       ledgermath.NewDecimal(req.Quantity),
		Price:          ledgermath.NewDecimal(req.Price),
		QuoteCurrency:  req.QuoteCurrency,
		ReportCurrency: req.ReportCurrency,
		QCGrossAmount:  &qc,
		RCGrossAmount:  rc,
	}

	id, err := s.repo.InsertPendingTrade(ctx, s.repo.pool, t)
	if err != nil {
		return nil, apierr.New("insert_failed")
	}

	resp := &StagingResponse{ID: id, Status: domain.StatusEntry, Lifecycle: domain.LifecycleActive, EntryVersion: 1}
	if idempotencyKey != "" {
		_ = s.idemp.StoreResponse(ctx, scope, idempotencyKey, resp)
	}
	return resp, nil
}

func (s *Service) validateCreate(ctx context.Context, req CreateSingleRequest) error {
	if req.Level == domain.LevelAllocation && (req.PortfolioID == nil || *req.PortfolioID <= 0) {
		return apierr.Invalid("portfolio_id")
	}
	if err := validatePositiveID("instrument_id", req.InstrumentID); err != nil {
		return err
	}
	if err := validateCurrency("quote_currency", req.QuoteCurrency); err != nil {
		return err
	}
	if err := validateCurrency("report_currency", req.ReportCurrency); err != nil {
		return err
	}
	if req.Quantity.IsZero() {
		return apierr.Invalid("quantity")
	}
	if req.Price.Sign() <= 0 {
		return apierr.Invalid("price")
	}
	if req.PortfolioID != nil {
		ok, err := s.repo.PortfolioExists(ctx, *req.PortfolioID)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.New("portfolio_not_found")
		}
	}
	ok, err := s.repo.InstrumentExists(ctx, req.InstrumentID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.New("instrument_not_found")
	}
	return nil
}

// Get loads a pending trade by id for the GET endpoint.
func (s *Service) Get(ctx context.Context, id int64) (*StagingResponse, error) {
	t, err := s.repo.GetPendingTrade(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.New("not_found")
	}
	if err != nil {
		return nil, err
	}
	return &StagingResponse{ID: t.ID, Status: t.Status, Lifecycle: t.Lifecycle, EntryVersion: t.EntryVersion}, nil
}

// PatchRequest is the body of PATCH /staging-transactions/{id}.
type PatchRequest struct {
	TradeDate  *time.Time       `json:"trade_date"`
	SettleDate *time.Time       `json:"settle_date"`
	Quantity   *decimal.Decimal `json:"quantity"`
	Price      *decimal.Decimal `json:"price"`
}

// PatchSingle applies a partial update only when status=entry AND
// lifecycle=active.
func (s *Service) PatchSingle(ctx context.Context, id int64, req PatchRequest, actor, reason string) (*StagingResponse, error) {
	before, err := s.repo.GetPendingTrade(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.New("not_found")
	}
	if err != nil {
		return nil, err
	}
	if before.Status != domain.StatusEntry {
		return nil, apierr.New("not_editable")
	}
	if before.Lifecycle != domain.LifecycleActive {
		return nil, apierr.New("not_active")
	}

	fields := map[string]any{}
	if req.TradeDate != nil {
		fields["trade_date"] = *req.TradeDate
	}
	if req.SettleDate != nil {
		fields["settle_date"] = *req.SettleDate
	}
	if req.Quantity != nil {
		if req.Quantity.IsZero() {
			return nil, apierr.Invalid("quantity")
		}
		fields["quantity"] = *req.Quantity
	}
	if req.Price != nil {
		if req.Price.Sign() <= 0 {
			return nil, apierr.Invalid("price")
		}
		fields["price"] = *req.Price
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.repo.PatchPendingTrade(ctx, tx, id, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.New("concurrent_update")
	}

	if err := s.repo.InsertChange(ctx, tx, id, actor, reason, before, fields); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	after, err := s.repo.GetPendingTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StagingResponse{ID: after.ID, Status: after.Status, Lifecycle: after.Lifecycle, EntryVersion: after.EntryVersion}, nil
}

func jsonUnmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

// ChildAllocationStagingIDs resolves the child allocation-level staging ids
// of the block referenced by blockStagingID, for the deal-process endpoint.
func (s *Service) ChildAllocationStagingIDs(ctx context.Context, blockStagingID int64) ([]int64, int64, error) {
	ids, dealBlockID, err := s.repo.ChildAllocationIDs(ctx, blockStagingID)
	if errors.Is(err, ErrNotFound) {
		return nil, 0, apierr.New("not_found")
	}
	return ids, dealBlockID, err
}

// DealAllocationRequest is one requested allocation leg of a deal.
type DealAllocationRequest struct {
	PortfolioID      int64           `json:"portfolio_id"`
	AllocationQuantity decimal.Decimal `json:"allocation_quantity"`
}

// CreateDealRequest is the body of POST /staging-transactions/deals.
type CreateDealRequest struct {
	InstrumentID    int64                    `json:"instrument_id"`
	TradeDate       time.Time                `json:"trade_date"`
	SettleDate      *time.Time               `json:"settle_date"`
	TransactionType string                   `json:"transaction_type"` // e.g. BuyEquity, SellEquity
	TotalQuantity   decimal.Decimal          `json:"total_quantity"`
	Price           decimal.Decimal          `json:"price"`
	QuoteCurrency   string                   `json:"quote_currency"`
	ReportCurrency  string                   `json:"report_currency"`
	Allocations     []DealAllocationRequest  `json:"allocations"`
}

// AllocationStagingResult is one entry of the deal-creation response.
type AllocationStagingResult struct {
	PortfolioID int64  `json:"portfolio_id"`
	Quantity    string `json:"quantity"`
	AmountQC    string `json:"amount_qc"`
	StagingID   int64  `json:"staging_id"`
}

// CreateDealResponse is the body returned by POST /staging-transactions/deals.
type CreateDealResponse struct {
	BlockStagingID       int64                      `json:"block_staging_id"`
	DealBlockID          int64                      `json:"deal_block_id"`
	BlockAmountQC        string                     `json:"block_amount_qc"`
	AllocationStagings   []AllocationStagingResult  `json:"allocation_stagings"`
}

// isSellFamily classifies a transaction_type tag as a SELL-family
// instruction; anything else is treated as BUY-family.
func isSellFamily(txType string) bool {
	switch txType {
	case "SellEquity", "Sell", "SELL", "SellToClose", "SellToOpen":
		return true
	default:
		return false
	}
}

// CreateDeal creates, in one call and one transaction, a deal block, its
// block-level pending trade, N deal allocations, and N allocation-level
// pending trades.
func (s *Service) CreateDeal(ctx context.Context, req CreateDealRequest) (*CreateDealResponse, error) {
	if req.TotalQuantity.IsZero() {
		return nil, apierr.New("invalid_total_quantity")
	}
	if req.Price.Sign() <= 0 {
		return nil, apierr.New("invalid_price")
	}
	if len(req.Allocations) == 0 {
		return nil, apierr.Invalid("allocations")
	}

	sign := decimal.NewFromInt(1)
	if isSellFamily(req.TransactionType) {
		sign = decimal.NewFromInt(-1)
	}

	sumAbsAlloc := decimal.Zero
	for _, a := range req.Allocations {
		if a.AllocationQuantity.Sign() <= 0 {
			return nil, apierr.New("invalid_allocation_quantity")
		}
		sumAbsAlloc = sumAbsAlloc.Add(a.AllocationQuantity)
		ok, err := s.repo.PortfolioExists(ctx, a.PortfolioID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apierr.New("portfolio_not_found")
		}
	}
	if !sumAbsAlloc.Equal(req.TotalQuantity.Abs()) {
		return nil, apierr.New("allocation_quantity_mismatch")
	}

	ok, err := s.repo.InstrumentExists(ctx, req.InstrumentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.New("instrument_not_found")
	}

	totalSignedQty := req.TotalQuantity.Abs().Mul(sign)

	// Residual rule: allocation amounts independently rounded, largest raw
	// |qty*price| absorbs the residual against the block amount.
	ledgerAllocs := make([]ledgermath.Allocation, len(req.Allocations))
	for i, a := range req.Allocations {
		ledgerAllocs[i] = ledgermath.Allocation{Index: i, Quantity: a.AllocationQuantity, Price: req.Price}
	}
	blockAmount, splits := ledgermath.SplitResidual(req.TotalQuantity.Abs(), req.Price, ledgerAllocs)

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	blockQC := ledgermath.NewDecimal(blockAmount)
	var blockRC *ledgermath.Decimal
	if req.QuoteCurrency == req.ReportCurrency {
		blockRC = &blockQC
	}
	block := &domain.DealBlock{
		InstrumentID:  req.InstrumentID,
		TradeDate:     req.TradeDate,
		SettleDate:    req.SettleDate,
		TradeCurrency: req.QuoteCurrency,
		Quantity:      ledgermath.NewDecimal(totalSignedQty),
		Price:         ledgermath.NewDecimal(req.Price),
	}
	blockID, err := s.repo.InsertDealBlock(ctx, tx, block)
	if err != nil {
		return nil, err
	}

	blockTrade := &domain.PendingTrade{
		Level:          domain.LevelBlock,
		DealBlockID:    &blockID,
		InstrumentID:   req.InstrumentID,
		TradeDate:      req.TradeDate,
		SettleDate:     req.SettleDate,
		Quantity:       ledgermath.NewDecimal(totalSignedQty),
		Price:          ledgermath.NewDecimal(req.Price),
		QuoteCurrency:  req.QuoteCurrency,
		ReportCurrency: req.ReportCurrency,
		QCGrossAmount:  &blockQC,
		RCGrossAmount:  blockRC,
	}
	blockStagingID, err := s.repo.InsertPendingTrade(ctx, tx, blockTrade)
	if err != nil {
		return nil, err
	}

	results := make([]AllocationStagingResult, len(req.Allocations))
	for i, a := range req.Allocations {
		signedQty := a.AllocationQuantity.Mul(sign)
		amountQC := splits[i].Amount

		alloc := &domain.DealAllocation{
			DealBlockID:          blockID,
			PortfolioID:          a.PortfolioID,
			Quantity:             ledgermath.NewDecimal(signedQty),
			Price:                ledgermath.NewDecimal(req.Price),
			IsRoundingAdjustment: splits[i].IsRoundingAdjustment,
		}
		allocID, err := s.repo.InsertDealAllocation(ctx, tx, alloc)
		if err != nil {
			return nil, err
		}

		portfolioID := a.PortfolioID
		allocQC := ledgermath.NewDecimal(amountQC)
		var allocRC *ledgermath.Decimal
		if req.QuoteCurrency == req.ReportCurrency {
			allocRC = &allocQC
		}
		allocTrade := &domain.PendingTrade{
			Level:                domain.LevelAllocation,
			DealBlockID:          &blockID,
			DealAllocationID:     &allocID,
			PortfolioID:          &portfolioID,
			InstrumentID:         req.InstrumentID,
			TradeDate:            req.TradeDate,
			SettleDate:           req.SettleDate,
			Quantity:             ledgermath.NewDecimal(signedQty),
			Price:                ledgermath.NewDecimal(req.Price),
			QuoteCurrency:        req.QuoteCurrency,
			ReportCurrency:       req.ReportCurrency,
			QCGrossAmount:        &allocQC,
			RCGrossAmount:        allocRC,
			IsRoundingAdjustment: splits[i].IsRoundingAdjustment,
		}
		allocStagingID, err := s.repo.InsertPendingTrade(ctx, tx, allocTrade)
		if err != nil {
			return nil, err
		}

		results[i] = AllocationStagingResult{
			PortfolioID: a.PortfolioID,
			Quantity:    ledgermath.Canonical(signedQty),
			AmountQC:    ledgermath.Canonical(amountQC),
			StagingID:   allocStagingID,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &CreateDealResponse{
		BlockStagingID:     blockStagingID,
		DealBlockID:        blockID,
		BlockAmountQC:      ledgermath.Canonical(blockAmount),
		AllocationStagings: results,
	}, nil
}
