package corpaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/database"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/idempotency"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// Service drives the corporate-action engine.
type Service struct {
	repo  *Repository
	idemp *idempotency.Store
	log   zerolog.Logger
}

// NewService builds a Service.
func NewService(repo *Repository, idemp *idempotency.Store, log zerolog.Logger) *Service {
	return &Service{repo: repo, idemp: idemp, log: log.With().Str("component", "corpaction").Logger()}
}

// CreateEventRequest is the body of POST /corporate-actions.
type CreateEventRequest struct {
	CAType             domain.CAType    `json:"ca_type"`
	InstrumentID       int64            `json:"instrument_id"`
	ExDate             time.Time        `json:"ex_date"`
	RecordDate         *time.Time       `json:"record_date"`
	PayDate            *time.Time       `json:"pay_date"`
	Currency           *string          `json:"currency"`
	CashAmountPerShare *decimal.Decimal `json:"cash_amount_per_share"`
	SplitNumerator     *int64           `json:"split_numerator"`
	SplitDenominator   *int64           `json:"split_denominator"`
	RequireElection    bool             `json:"require_election"`
}

// EventResponse is the common response shape for event-facing endpoints.
type EventResponse struct {
	ID              int64                `json:"id"`
	CAType          domain.CAType        `json:"ca_type"`
	InstrumentID    int64                `json:"instrument_id"`
	Status          domain.CAEventStatus `json:"status"`
	Lifecycle       domain.Lifecycle     `json:"lifecycle"`
	RequireElection bool                 `json:"require_election"`
}

// CreateEvent validates and persists a new CA event. The event lifecycle
// runs entry -> announced -> election_open -> processed/cancelled; a
// freshly created event is immediately opened for election since the HTTP
// surface exposes no separate announce or open-election transition.
func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (*EventResponse, error) {
	if req.CAType != domain.CACashDividend && req.CAType != domain.CAStockSplit {
		return nil, apierr.New("invalid_ca_type")
	}
	if req.InstrumentID <= 0 {
		return nil, apierr.Invalid("instrument_id")
	}
	if req.CAType == domain.CACashDividend && (req.CashAmountPerShare == nil || req.CashAmountPerShare.Sign() <= 0) {
		return nil, apierr.Invalid("cash_amount_per_share")
	}
	if req.CAType == domain.CAStockSplit && (req.SplitNumerator == nil || req.SplitDenominator == nil || *req.SplitNumerator <= 0 || *req.SplitDenominator <= 0) {
		return nil, apierr.Invalid("split_ratio")
	}

	var cashPerShare *ledgermath.Decimal
	if req.CashAmountPerShare != nil {
		d := ledgermath.NewDecimal(*req.CashAmountPerShare)
		cashPerShare = &d
	}
	e := &domain.CAEvent{
		CAType:             req.CAType,
		InstrumentID:       req.InstrumentID,
		ExDate:             req.ExDate,
		RecordDate:         req.RecordDate,
		PayDate:            req.PayDate,
		Currency:           req.Currency,
		CashAmountPerShare: cashPerShare,
		SplitNumerator:     req.SplitNumerator,
		SplitDenominator:   req.SplitDenominator,
		RequireElection:    req.RequireElection,
	}
	id, err := s.repo.InsertEvent(ctx, e)
	if err != nil {
		return nil, apierr.New("insert_failed")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := s.repo.UpdateEventStatus(ctx, tx, id, domain.CAElectionOpen); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &EventResponse{ID: id, CAType: e.CAType, InstrumentID: e.InstrumentID, Status: domain.CAElectionOpen, Lifecycle: domain.LifecycleActive, RequireElection: e.RequireElection}, nil
}

// GetEvent loads an event for the GET endpoint.
func (s *Service) GetEvent(ctx context.Context, id int64) (*EventResponse, error) {
	e, err := s.repo.GetEvent(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.New("ca_event_not_found")
	}
	if err != nil {
		return nil, err
	}
	return &EventResponse{ID: e.ID, CAType: e.CAType, InstrumentID: e.InstrumentID, Status: e.Status, Lifecycle: e.Lifecycle, RequireElection: e.RequireElection}, nil
}

// ElectRequest is the body of POST /corporate-actions/{id}/elections.
type ElectRequest struct {
	PortfolioID int64                 `json:"portfolio_id"`
	Choice      domain.ElectionChoice `json:"choice"`
}

// Elect records a portfolio's accept/decline decision on a gated event.
func (s *Service) Elect(ctx context.Context, caEventID int64, req ElectRequest) error {
	if req.Choice != domain.ElectionAccept && req.Choice != domain.ElectionDecline {
		return apierr.New("invalid_choice")
	}
	if _, err := s.repo.GetEvent(ctx, caEventID); errors.Is(err, ErrNotFound) {
		return apierr.New("ca_event_not_found")
	} else if err != nil {
		return err
	}
	return s.repo.UpsertElection(ctx, caEventID, req.PortfolioID, req.Choice)
}

// HolderEffect is one per-holder result row of ProcessEvent.
type HolderEffect struct {
	PortfolioID int64   `json:"portfolio_id"`
	CashAmount  *string `json:"cash_amount,omitempty"`
	ShareDelta  *string `json:"share_delta,omitempty"`
}

// ProcessResponse is the body of POST /corporate-actions/{id}/process.
type ProcessResponse struct {
	CAEventID int64          `json:"ca_event_id"`
	Status    string         `json:"status"`
	Effects   []HolderEffect `json:"effects"`
}

// ProcessEvent loads the event, requires lifecycle=active and an
// unprocessed status, then applies the event's effect to every current
// nonzero holder in an isolated per-holder transaction, gated by election
// and deduplicated by the ca_effect claim-by-insert.
func (s *Service) ProcessEvent(ctx context.Context, caEventID int64) (*ProcessResponse, error) {
	scope := "ca_process_event"
	key := fmt.Sprintf("%d", caEventID)
	if cached, ok, err := s.idemp.GetResponse(ctx, scope, key); err == nil && ok {
		var resp ProcessResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return &resp, nil
		}
	}

	event, err := s.repo.GetEvent(ctx, caEventID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.New("ca_event_not_found")
	}
	if err != nil {
		return nil, err
	}
	if event.Lifecycle != domain.LifecycleActive {
		return nil, apierr.New("ca_event_not_active")
	}
	if event.Status == domain.CAProcessed || event.Status == domain.CACancelled {
		return s.cachedResult(ctx, caEventID, string(event.Status))
	}
	if event.Status != domain.CAElectionOpen {
		return nil, apierr.New("ca_event_not_active")
	}

	holders, err := s.repo.Holders(ctx, event.InstrumentID)
	if err != nil {
		return nil, err
	}

	effects := make([]HolderEffect, 0, len(holders))
	for _, h := range holders {
		eff, applied, err := s.applyToHolder(ctx, event, h)
		if err != nil {
			return nil, fmt.Errorf("corpaction: holder %d: %w", h.PortfolioID, err)
		}
		if applied {
			effects = append(effects, eff)
		}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := s.repo.UpdateEventStatus(ctx, tx, caEventID, domain.CAProcessed); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	resp := &ProcessResponse{CAEventID: caEventID, Status: string(domain.CAProcessed), Effects: effects}
	_ = s.idemp.StoreResponse(ctx, scope, key, resp)
	return resp, nil
}

// cachedResult rebuilds the response for an already-processed/cancelled
// event from its persisted ca_effect rows.
func (s *Service) cachedResult(ctx context.Context, caEventID int64, status string) (*ProcessResponse, error) {
	rows, err := s.repo.Effects(ctx, caEventID)
	if err != nil {
		return nil, err
	}
	effects := make([]HolderEffect, 0, len(rows))
	for _, r := range rows {
		effects = append(effects, HolderEffect{
			PortfolioID: r.PortfolioID,
			CashAmount:  canonicalPtr(r.CashAmount),
			ShareDelta:  canonicalPtr(r.ShareDelta),
		})
	}
	return &ProcessResponse{CAEventID: caEventID, Status: status, Effects: effects}, nil
}

func canonicalPtr(d *ledgermath.Decimal) *string {
	if d == nil {
		return nil
	}
	s := ledgermath.Canonical(d.Decimal)
	return &s
}

// applyToHolder gates on election, claims the per-holder ca_effect slot,
// and applies the event's cash_dividend/stock_split effect within a single
// isolated transaction.
func (s *Service) applyToHolder(ctx context.Context, event *domain.CAEvent, h Holder) (HolderEffect, bool, error) {
	requireElection := event.RequireElection
	if !requireElection {
		rule, err := s.repo.PortfolioRule(ctx, h.PortfolioID)
		if err != nil {
			return HolderEffect{}, false, err
		}
		requireElection = rule.RequireElection
	}
	if requireElection {
		election, err := s.repo.Election(ctx, event.ID, h.PortfolioID)
		if err != nil {
			return HolderEffect{}, false, err
		}
		if election == nil || election.Choice != domain.ElectionAccept {
			return HolderEffect{}, false, nil
		}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return HolderEffect{}, false, err
	}
	defer tx.Rollback(ctx)

	claimed, err := s.repo.ClaimEffect(ctx, tx, event.ID, h.PortfolioID)
	if err != nil {
		return HolderEffect{}, false, err
	}
	if !claimed {
		return HolderEffect{}, false, nil
	}

	effectiveDate := event.ExDate
	if event.PayDate != nil {
		effectiveDate = *event.PayDate
	}
	description := fmt.Sprintf("corporate_action:%s:event_%d", event.CAType, event.ID)
	entryID, err := s.repo.InsertJournalEntry(ctx, tx, effectiveDate, description)
	if err != nil {
		return HolderEffect{}, false, err
	}

	var result HolderEffect
	var cashAmount, shareDelta *decimal.Decimal

	switch event.CAType {
	case domain.CACashDividend:
		currency := h.ReportCurrency
		if event.Currency != nil && *event.Currency != "" {
			currency = *event.Currency
		}
		cash := ledgermath.RoundMoney(h.Quantity.Mul(event.CashAmountPerShare.Decimal))
		cashAmount = &cash

		cashInstrumentID, err := s.repo.EnsureCashInstrument(ctx, tx, currency)
		if err != nil {
			return HolderEffect{}, false, err
		}
		if err := database.AdvisoryLockPosition(ctx, tx, h.PortfolioID, cashInstrumentID); err != nil {
			return HolderEffect{}, false, err
		}
		if _, err := s.repo.AddCashPosition(ctx, tx, h.PortfolioID, cashInstrumentID, cash, entryID, uuid.NewString()); err != nil {
			return HolderEffect{}, false, err
		}
		if err := s.repo.InsertJournalLine(ctx, tx, entryID, h.PortfolioID, cashInstrumentID, domain.AccountCash, domain.Debit, decimal.Zero, cash, false, currency); err != nil {
			return HolderEffect{}, false, err
		}
		if err := s.repo.InsertJournalLine(ctx, tx, entryID, h.PortfolioID, event.InstrumentID, domain.AccountDividendIncome, domain.Credit, decimal.Zero, cash, false, currency); err != nil {
			return HolderEffect{}, false, err
		}

	case domain.CAStockSplit:
		ratio := decimal.NewFromInt(*event.SplitNumerator).Div(decimal.NewFromInt(*event.SplitDenominator))
		newShares := ledgermath.RoundQuantity(h.Quantity.Mul(ratio))
		delta := newShares.Sub(h.Quantity)
		shareDelta = &delta

		drcr := domain.Debit
		if delta.Sign() < 0 {
			drcr = domain.Credit
		}
		if err := database.AdvisoryLockPosition(ctx, tx, h.PortfolioID, event.InstrumentID); err != nil {
			return HolderEffect{}, false, err
		}
		if _, err := s.repo.AddEquityQuantity(ctx, tx, h.PortfolioID, event.InstrumentID, delta, entryID, uuid.NewString()); err != nil {
			return HolderEffect{}, false, err
		}
		if err := s.repo.InsertJournalLine(ctx, tx, entryID, h.PortfolioID, event.InstrumentID, domain.AccountStockSplit, drcr, delta, decimal.Zero, true, h.ReportCurrency); err != nil {
			return HolderEffect{}, false, err
		}

	default:
		return HolderEffect{}, false, fmt.Errorf("corpaction: unsupported ca_type %q", event.CAType)
	}

	if err := s.repo.UpdateEffect(ctx, tx, event.ID, h.PortfolioID, entryID, cashAmount, shareDelta); err != nil {
		return HolderEffect{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return HolderEffect{}, false, err
	}

	result = HolderEffect{PortfolioID: h.PortfolioID}
	if cashAmount != nil {
		c := ledgermath.Canonical(*cashAmount)
		result.CashAmount = &c
	}
	if shareDelta != nil {
		d := ledgermath.Canonical(*shareDelta)
		result.ShareDelta = &d
	}
	return result, true, nil
}
