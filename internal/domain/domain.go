// Package domain holds the shared entity types described in the data model:
// portfolios, instruments, pending trades, deal blocks/allocations, journal
// entries, positions, market data, NAV runs, and corporate actions.
package domain

import (
	"time"

	"github.com/aristath/backoffice/internal/ledgermath"
)

// InstrumentType enumerates the subtype families an Instrument may carry.
type InstrumentType string

const (
	InstrumentStock       InstrumentType = "stock"
	InstrumentCash        InstrumentType = "cash"
	InstrumentFutures     InstrumentType = "futures"
	InstrumentFX          InstrumentType = "fx"
	InstrumentSwap        InstrumentType = "swap"
	InstrumentFixedIncome InstrumentType = "fixedincome"
)

// StagingLevel distinguishes a block-level pending trade from a child
// allocation-level one.
type StagingLevel string

const (
	LevelBlock      StagingLevel = "block"
	LevelAllocation StagingLevel = "allocation"
)

// StagingStatus is the trade-lifecycle state machine's state set.
type StagingStatus string

const (
	StatusEntry     StagingStatus = "entry"
	StatusPreCheck  StagingStatus = "pre_check"
	StatusPosition  StagingStatus = "position"
	StatusAllocated StagingStatus = "allocated"
	StatusSettled   StagingStatus = "settled"
)

// Lifecycle is the soft-delete/cancellation flag shared by most rows.
type Lifecycle string

const (
	LifecycleActive    Lifecycle = "active"
	LifecycleCancelled Lifecycle = "cancelled"
	LifecycleDeleted   Lifecycle = "deleted"
)

// SourceSystem classifies deal-adjustment-originated pending trades.
type SourceSystem string

const (
	SourceModifyReversal    SourceSystem = "modify_reversal"
	SourceModifyReplacement SourceSystem = "modify_replacement"
	SourceDeleteReversal    SourceSystem = "delete_reversal"
)

// TradeType is the BUY/SELL classification derived from quantity sign.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// EntryRole distinguishes a journal entry from its reversal/replacement.
type EntryRole string

const (
	EntryNormal      EntryRole = "normal"
	EntryReversal    EntryRole = "reversal"
	EntryReplacement EntryRole = "replacement"
)

// DrCr is the debit/credit side of a journal entry line.
type DrCr string

const (
	Debit  DrCr = "DR"
	Credit DrCr = "CR"
)

// Account codes in use by the ledger.
const (
	AccountPosition        = "POSITION"
	AccountCash            = "CASH"
	AccountDividendIncome  = "DIVIDEND_INCOME"
	AccountStockSplit      = "STOCK_SPLIT"
)

// NAVRunType distinguishes intra-day realtime/snapshot IBOR runs from EOD
// ABOR runs.
type NAVRunType string

const (
	NAVRealtime NAVRunType = "realtime"
	NAVSnapshot NAVRunType = "snapshot"
	NAVEod      NAVRunType = "eod"
)

// NAVRunStatus is the lifecycle of a NAV run header.
type NAVRunStatus string

const (
	NAVRunning   NAVRunStatus = "running"
	NAVCompleted NAVRunStatus = "completed"
	NAVFailed    NAVRunStatus = "failed"
)

// CAType enumerates the supported corporate action kinds.
type CAType string

const (
	CACashDividend CAType = "cash_dividend"
	CAStockSplit   CAType = "stock_split"
)

// CAEventStatus is the corporate-action event lifecycle: only
// election_open can transition to processed; entry/announced are pre-effect
// states.
type CAEventStatus string

const (
	CAEntry         CAEventStatus = "entry"
	CAAnnounced     CAEventStatus = "announced"
	CAElectionOpen  CAEventStatus = "election_open"
	CAProcessed     CAEventStatus = "processed"
	CACancelled     CAEventStatus = "cancelled"
)

// ElectionChoice is a portfolio's decision on a gated corporate action.
type ElectionChoice string

const (
	ElectionAccept  ElectionChoice = "accept"
	ElectionDecline ElectionChoice = "decline"
)

// Portfolio carries a reporting currency; immutable after creation.
type Portfolio struct {
	ID              int64
	ReportCurrency  string
}

// Instrument is the tradable/valuable security or cash line.
type Instrument struct {
	ID             int64
	InstrumentType InstrumentType
	QuoteCurrency  string
	SecurityID     string
}

// PendingTrade is the central trade-lifecycle entity.
type PendingTrade struct {
	ID               int64
	Level            StagingLevel
	DealBlockID      *int64
	DealAllocationID *int64
	PortfolioID      *int64
	InstrumentID     int64
	TradeDate        time.Time
	SettleDate       *time.Time
	Quantity         ledgermath.Decimal
	Price            ledgermath.Decimal
	QuoteCurrency    string
	ReportCurrency   string
	QCGrossAmount    *ledgermath.Decimal
	RCGrossAmount    *ledgermath.Decimal
	Status           StagingStatus
	Lifecycle        Lifecycle
	EntryVersion     int64
	SourceSystem     *SourceSystem
	IsRoundingAdjustment bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PendingTradeChange is the append-only audit trail for staging edits.
type PendingTradeChange struct {
	ID             int64
	PendingTradeID int64
	ChangedAt      time.Time
	Actor          string
	Reason         string
	OldRow         []byte // opaque JSON
	NewRow         []byte // opaque JSON
}

// DealBlock is the business object behind a block trade.
type DealBlock struct {
	ID             int64
	InstrumentID   int64
	TradeDate      time.Time
	SettleDate     *time.Time
	TradeCurrency  string
	Quantity       ledgermath.Decimal
	Price          ledgermath.Decimal
	Lifecycle      Lifecycle
}

// DealAllocation is a per-portfolio child of a DealBlock.
type DealAllocation struct {
	ID                   int64
	DealBlockID          int64
	PortfolioID          int64
	Quantity             ledgermath.Decimal
	Price                ledgermath.Decimal
	IsRoundingAdjustment bool
	Lifecycle            Lifecycle
}

// JournalEntry is an immutable posting header.
type JournalEntry struct {
	ID                    int64
	PendingTradeID        *int64
	DealBlockID           *int64
	DealAllocationID      *int64
	EffectiveDate         time.Time
	PostedAt              time.Time
	TradeType             TradeType
	EntryRole             EntryRole
	ReversalOfEntryID     *int64
	ReplacementOfEntryID  *int64
	Description           string
}

// JournalEntryLine is one posting leg.
type JournalEntryLine struct {
	ID           int64
	EntryID      int64
	PortfolioID  int64
	InstrumentID int64
	AccountCode  string
	DrCr         DrCr
	Quantity     *ledgermath.Decimal
	Amount       ledgermath.Decimal
	Currency     string
}

// PositionCurrent is the live per-portfolio-instrument position.
type PositionCurrent struct {
	PortfolioID      int64
	InstrumentID     int64
	Quantity         ledgermath.Decimal
	CostBasisRC      *ledgermath.Decimal
	LastJournalEntryID *int64
	VersionUUID      string
	UpdatedAt        time.Time
}

// PositionSnapshotEOD is an EOD materialization keyed by (asof, portfolio, instrument).
type PositionSnapshotEOD struct {
	AsofDate      time.Time
	PortfolioID   int64
	InstrumentID  int64
	Quantity      ledgermath.Decimal
	CostBasisRC   *ledgermath.Decimal
	ThroughEntryID int64
}

// MarketPrice is a timestamped price observation.
type MarketPrice struct {
	InstrumentID int64
	AsofDate     time.Time
	AsofTS       time.Time
	Price        ledgermath.Decimal
	Currency     string
	IsEOD        bool
	SourceID     string
}

// FXRate is a timestamped exchange rate observation.
type FXRate struct {
	BaseCcy  string
	QuoteCcy string
	AsofTS   time.Time
	Rate     ledgermath.Decimal
	IsEOD    bool
	SourceID string
}

// NAVRun is a run header for either the IBOR or ABOR sibling table.
type NAVRun struct {
	ID                int64
	PortfolioID       int64
	RunType           NAVRunType
	AsofTS            *time.Time
	AsofDate          *time.Time
	Status            NAVRunStatus
	IdempotencyScope  *string
	IdempotencyKey    *string
}

// NAVResult holds the computed NAV for a run.
type NAVResult struct {
	NAVRunID int64
	NAVRC    ledgermath.Decimal
}

// NAVLineItem is a per-instrument breakdown row of a NAVResult.
type NAVLineItem struct {
	NAVRunID        int64
	InstrumentID    int64
	Quantity        ledgermath.Decimal
	Price           ledgermath.Decimal
	FXRate          ledgermath.Decimal
	MarketValueRC   ledgermath.Decimal
	PriceAsofTS     *time.Time
	PriceSourceID   *string
	FXRateAsofTS    *time.Time
	FXRateSourceID  *string
}

// CAEvent is a corporate-action announcement.
type CAEvent struct {
	ID                  int64
	CAType              CAType
	InstrumentID        int64
	ExDate              time.Time
	RecordDate          *time.Time
	PayDate             *time.Time
	Currency            *string
	CashAmountPerShare  *ledgermath.Decimal
	SplitNumerator      *int64
	SplitDenominator    *int64
	RequireElection     bool
	Status              CAEventStatus
	Lifecycle           Lifecycle
}

// CAElection is a portfolio's accept/decline decision on a gated event.
type CAElection struct {
	CAEventID   int64
	PortfolioID int64
	Choice      ElectionChoice
}

// CAEffect is the per-holder at-most-once application record.
type CAEffect struct {
	CAEventID      int64
	PortfolioID    int64
	JournalEntryID *int64
	CashAmount     *ledgermath.Decimal
	ShareDelta     *ledgermath.Decimal
}

// CAPortfolioRule is the per-portfolio election policy consulted when an
// event itself does not require election.
type CAPortfolioRule struct {
	PortfolioID     int64
	RequireElection bool
}
