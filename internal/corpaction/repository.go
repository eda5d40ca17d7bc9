// Package corpaction implements the corporate-action engine: per-holder
// isolated-transaction application of cash dividends and stock splits,
// gated by portfolio elections and deduplicated by a claim-by-insert on
// ca_effect.
package corpaction

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// Repository is the direct-SQL data-access layer for corporate-action
// events, elections, and effects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound is returned when a referenced row is absent.
var ErrNotFound = errors.New("corpaction: not found")

// InsertEvent creates a new ca_event row in status=entry, lifecycle=active.
func (r *Repository) InsertEvent(ctx context.Context, e *domain.CAEvent) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO ca_event
			(ca_type, instrument_id, ex_date, record_date, pay_date, currency,
			 cash_amount_per_share, split_numerator, split_denominator, require_election,
			 status, lifecycle)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'entry','active')
		 RETURNING id`,
		e.CAType, e.InstrumentID, e.ExDate, e.RecordDate, e.PayDate, e.Currency,
		decimalPtr(e.CashAmountPerShare), e.SplitNumerator, e.SplitDenominator, e.RequireElection,
	).Scan(&id)
	return id, err
}

func decimalPtr(d *ledgermath.Decimal) any {
	if d == nil {
		return nil
	}
	return d.Decimal
}

// GetEvent loads a ca_event row by id.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*domain.CAEvent, error) {
	return r.getEvent(ctx, r.pool, id)
}

// GetEventForUpdate loads a ca_event row by id, locking it within tx.
func (r *Repository) GetEventForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.CAEvent, error) {
	return r.getEvent(ctx, tx, id, " FOR UPDATE")
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getEvent(ctx context.Context, q pgxQuerier, id int64, suffix ...string) (*domain.CAEvent, error) {
	s := ""
	if len(suffix) > 0 {
		s = suffix[0]
	}
	row := q.QueryRow(ctx,
		`SELECT id, ca_type, instrument_id, ex_date, record_date, pay_date, currency,
		        cash_amount_per_share, split_numerator, split_denominator, require_election,
		        status, lifecycle
		 FROM ca_event WHERE id = $1`+s, id)

	var e domain.CAEvent
	var cashPerShare decimal.NullDecimal
	err := row.Scan(
		&e.ID, &e.CAType, &e.InstrumentID, &e.ExDate, &e.RecordDate, &e.PayDate, &e.Currency,
		&cashPerShare, &e.SplitNumerator, &e.SplitDenominator, &e.RequireElection,
		&e.Status, &e.Lifecycle,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cashPerShare.Valid {
		d := ledgermath.NewDecimal(cashPerShare.Decimal)
		e.CashAmountPerShare = &d
	}
	return &e, nil
}

// UpdateEventStatus flips a ca_event's status within tx.
func (r *Repository) UpdateEventStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.CAEventStatus) error {
	_, err := tx.Exec(ctx, `UPDATE ca_event SET status = $1 WHERE id = $2`, status, id)
	return err
}

// PortfolioRule loads the per-portfolio election policy, defaulting to
// require_election=false when no row exists.
func (r *Repository) PortfolioRule(ctx context.Context, portfolioID int64) (domain.CAPortfolioRule, error) {
	var rule domain.CAPortfolioRule
	rule.PortfolioID = portfolioID
	err := r.pool.QueryRow(ctx,
		`SELECT require_election FROM ca_portfolio_rule WHERE portfolio_id = $1`, portfolioID,
	).Scan(&rule.RequireElection)
	if errors.Is(err, pgx.ErrNoRows) {
		return rule, nil
	}
	return rule, err
}

// Election loads a portfolio's election on an event, if one exists.
func (r *Repository) Election(ctx context.Context, caEventID, portfolioID int64) (*domain.CAElection, error) {
	var el domain.CAElection
	err := r.pool.QueryRow(ctx,
		`SELECT ca_event_id, portfolio_id, choice FROM ca_election WHERE ca_event_id = $1 AND portfolio_id = $2`,
		caEventID, portfolioID,
	).Scan(&el.CAEventID, &el.PortfolioID, &el.Choice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &el, nil
}

// UpsertElection records a portfolio's accept/decline choice on an event.
func (r *Repository) UpsertElection(ctx context.Context, caEventID, portfolioID int64, choice domain.ElectionChoice) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ca_election (ca_event_id, portfolio_id, choice)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (ca_event_id, portfolio_id) DO UPDATE SET choice = EXCLUDED.choice`,
		caEventID, portfolioID, choice,
	)
	return err
}

// Holder is a nonzero (portfolio, quantity) position in the event's
// instrument.
type Holder struct {
	PortfolioID    int64
	Quantity       decimal.Decimal
	ReportCurrency string
}

// Holders returns every portfolio currently holding a nonzero position in
// instrumentID.
func (r *Repository) Holders(ctx context.Context, instrumentID int64) ([]Holder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.portfolio_id, p.quantity, f.report_currency
		 FROM position_current p JOIN portfolio f ON f.id = p.portfolio_id
		 WHERE p.instrument_id = $1 AND p.quantity <> 0
		 ORDER BY p.portfolio_id`, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holder
	for rows.Next() {
		var h Holder
		if err := rows.Scan(&h.PortfolioID, &h.Quantity, &h.ReportCurrency); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ClaimEffect attempts the per-holder at-most-once insert into ca_effect.
// Returns true iff this caller claimed the slot.
func (r *Repository) ClaimEffect(ctx context.Context, tx pgx.Tx, caEventID, portfolioID int64) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO ca_effect (ca_event_id, portfolio_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		caEventID, portfolioID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateEffect records the resulting journal entry and computed deltas for
// a claimed ca_effect row.
func (r *Repository) UpdateEffect(ctx context.Context, tx pgx.Tx, caEventID, portfolioID, journalEntryID int64, cashAmount, shareDelta *decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`UPDATE ca_effect SET journal_entry_id = $3, cash_amount = $4, share_delta = $5
		 WHERE ca_event_id = $1 AND portfolio_id = $2`,
		caEventID, portfolioID, journalEntryID, cashAmount, shareDelta,
	)
	return err
}

// Effects returns every ca_effect row for an event, used to build the
// already-processed response when ProcessEvent is retried.
func (r *Repository) Effects(ctx context.Context, caEventID int64) ([]domain.CAEffect, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ca_event_id, portfolio_id, journal_entry_id, cash_amount, share_delta
		 FROM ca_effect WHERE ca_event_id = $1 ORDER BY portfolio_id`, caEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CAEffect
	for rows.Next() {
		var eff domain.CAEffect
		var cash, delta decimal.NullDecimal
		if err := rows.Scan(&eff.CAEventID, &eff.PortfolioID, &eff.JournalEntryID, &cash, &delta); err != nil {
			return nil, err
		}
		if cash.Valid {
			d := ledgermath.NewDecimal(cash.Decimal)
			eff.CashAmount = &d
		}
		if delta.Valid {
			d := ledgermath.NewDecimal(delta.Decimal)
			eff.ShareDelta = &d
		}
		out = append(out, eff)
	}
	return out, rows.Err()
}

// EnsureCashInstrument auto-provisions the CASH_{CCY} instrument on first
// use.
func (r *Repository) EnsureCashInstrument(ctx context.Context, tx pgx.Tx, currency string) (int64, error) {
	securityID := "CASH_" + currency
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO instrument (instrument_type, quote_currency, security_id)
		 VALUES ('cash', $1, $2)
		 ON CONFLICT (security_id) DO UPDATE SET security_id = EXCLUDED.security_id
		 RETURNING id`,
		currency, securityID,
	).Scan(&id)
	return id, err
}

// InstrumentType returns the instrument_type of instrumentID.
func (r *Repository) InstrumentType(ctx context.Context, instrumentID int64) (domain.InstrumentType, error) {
	var t domain.InstrumentType
	err := r.pool.QueryRow(ctx, `SELECT instrument_type FROM instrument WHERE id = $1`, instrumentID).Scan(&t)
	return t, err
}

// InsertJournalEntry posts a corporate-action journal header. The event is
// identified only by description since acct_transaction carries no
// ca_event_id column (only pending_trade_id/deal_block_id/deal_allocation_id).
func (r *Repository) InsertJournalEntry(ctx context.Context, tx pgx.Tx, effectiveDate time.Time, description string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO acct_transaction (effective_date, posted_at, trade_type, entry_role, description, created_at)
		 VALUES ($1, now(), 'BUY', 'normal', $2, now())
		 RETURNING id`,
		effectiveDate, description,
	).Scan(&id)
	return id, err
}

// InsertJournalLine posts one journal entry leg.
func (r *Repository) InsertJournalLine(ctx context.Context, tx pgx.Tx, entryID, portfolioID, instrumentID int64, accountCode string, drcr domain.DrCr, quantity, amount decimal.Decimal, hasQuantity bool, currency string) error {
	var qtyArg any
	if hasQuantity {
		qtyArg = quantity
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO acct_entry (entry_id, portfolio_id, instrument_id, account_code, drcr, quantity, amount, currency)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entryID, portfolioID, instrumentID, accountCode, drcr, qtyArg, amount, currency,
	)
	return err
}

// AddCashPosition upserts the holder's cash position by +delta, matching
// the position_current additive-update convention used by the trade
// lifecycle activities.
func (r *Repository) AddCashPosition(ctx context.Context, tx pgx.Tx, portfolioID, instrumentID int64, delta decimal.Decimal, journalEntryID int64, versionUUID string) (decimal.Decimal, error) {
	var newQty decimal.Decimal
	err := tx.QueryRow(ctx,
		`INSERT INTO position_current (portfolio_id, instrument_id, quantity, last_journal_entry_id, version_uuid, updated_at)
		 VALUES ($1,$2,$3,$4,$5,now())
		 ON CONFLICT (portfolio_id, instrument_id) DO UPDATE SET
		   quantity = position_current.quantity + EXCLUDED.quantity,
		   last_journal_entry_id = EXCLUDED.last_journal_entry_id,
		   version_uuid = EXCLUDED.version_uuid,
		   updated_at = now()
		 RETURNING quantity`,
		portfolioID, instrumentID, delta, journalEntryID, versionUUID,
	).Scan(&newQty)
	return newQty, err
}

// AddEquityQuantity adjusts an equity position's quantity by +delta, used
// by the stock_split effect.
func (r *Repository) AddEquityQuantity(ctx context.Context, tx pgx.Tx, portfolioID, instrumentID int64, delta decimal.Decimal, journalEntryID int64, versionUUID string) (decimal.Decimal, error) {
	var newQty decimal.Decimal
	err := tx.QueryRow(ctx,
		`UPDATE position_current SET
		   quantity = quantity + $3,
		   last_journal_entry_id = $4,
		   version_uuid = $5,
		   updated_at = now()
		 WHERE portfolio_id = $1 AND instrument_id = $2
		 RETURNING quantity`,
		portfolioID, instrumentID, delta, journalEntryID, versionUUID,
	).Scan(&newQty)
	return newQty, err
}

// BeginTx starts a transaction on the pool.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
