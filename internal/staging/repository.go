// Package staging implements the pending-trade service: create/patch of
// single pending trades and creation of deal blocks with their allocations,
// split into repository, service, and validation layers.
package staging

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// Repository is the direct-SQL data-access layer for pending trades and
// deal blocks/allocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound is returned when a referenced row is absent.
var ErrNotFound = errors.New("staging: not found")

func (r *Repository) PortfolioExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM portfolio WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) InstrumentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM instrument WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// InsertPendingTrade inserts a new pending_trade row in status=entry,
// lifecycle=active, entry_version=1 and returns the generated id.
func (r *Repository) InsertPendingTrade(ctx context.Context, q pgxQuerier, t *domain.PendingTrade) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO pending_trade
			(level, deal_block_id, deal_allocation_id, portfolio_id, instrument_id,
			 trade_date, settle_date, quantity, price, quote_currency, report_currency,
			 qc_gross_amount, rc_gross_amount, status, lifecycle, entry_version,
			 source_system, is_rounding_adjustment)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'entry','active',1,$14,$15)
		 RETURNING id`,
		t.Level, t.DealBlockID, t.DealAllocationID, t.PortfolioID, t.InstrumentID,
		t.TradeDate, t.SettleDate, t.Quantity.Decimal, t.Price.Decimal, t.QuoteCurrency, t.ReportCurrency,
		decimalOrNil(t.QCGrossAmount), decimalOrNil(t.RCGrossAmount), t.SourceSystem, t.IsRoundingAdjustment,
	).Scan(&id)
	return id, err
}

func decimalOrNil(d *ledgermath.Decimal) any {
	if d == nil {
		return nil
	}
	return d.Decimal
}

// GetPendingTrade loads a pending_trade row by id.
func (r *Repository) GetPendingTrade(ctx context.Context, id int64) (*domain.PendingTrade, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, level, deal_block_id, deal_allocation_id, portfolio_id, instrument_id,
		        trade_date, settle_date, quantity, price, quote_currency, report_currency,
		        qc_gross_amount, rc_gross_amount, status, lifecycle, entry_version,
		        source_system, is_rounding_adjustment, created_at, updated_at
		 FROM pending_trade WHERE id = $1`, id)
	return scanPendingTrade(row)
}

func scanPendingTrade(row pgx.Row) (*domain.PendingTrade, error) {
	var t domain.PendingTrade
	var qty, price decimal.Decimal
	var qc, rcAmt decimal.NullDecimal
	err := row.Scan(
		&t.ID, &t.Level, &t.DealBlockID, &t.DealAllocationID, &t.PortfolioID, &t.InstrumentID,
		&t.TradeDate, &t.SettleDate, &qty, &price, &t.QuoteCurrency, &t.ReportCurrency,
		&qc, &rcAmt, &t.Status, &t.Lifecycle, &t.EntryVersion,
		&t.SourceSystem, &t.IsRoundingAdjustment, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Quantity = ledgermath.NewDecimal(qty)
	t.Price = ledgermath.NewDecimal(price)
	if qc.Valid {
		d := ledgermath.NewDecimal(qc.Decimal)
		t.QCGrossAmount = &d
	}
	if rcAmt.Valid {
		d := ledgermath.NewDecimal(rcAmt.Decimal)
		t.RCGrossAmount = &d
	}
	return &t, nil
}

// PatchPendingTrade applies a partial update when status=entry AND
// lifecycle=active, bumping entry_version. Returns false if the row was not
// editable (caller should re-read and classify the conflict).
func (r *Repository) PatchPendingTrade(ctx context.Context, tx pgx.Tx, id int64, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return true, nil
	}
	set := ""
	args := []any{id}
	i := 2
	for col, val := range fields {
		if set != "" {
			set += ", "
		}
		set += col + " = $" + strconv.Itoa(i)
		args = append(args, val)
		i++
	}
	tag, err := tx.Exec(ctx,
		`UPDATE pending_trade SET `+set+`, entry_version = entry_version + 1, updated_at = now()
		 WHERE id = $1 AND status = 'entry' AND lifecycle = 'active'`,
		args...,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertChange appends an audit row for a staging mutation.
func (r *Repository) InsertChange(ctx context.Context, tx pgx.Tx, pendingTradeID int64, actor, reason string, oldRow, newRow any) error {
	oldB, err := json.Marshal(oldRow)
	if err != nil {
		return err
	}
	newB, err := json.Marshal(newRow)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO pending_trade_change (pending_trade_id, changed_at, actor, reason, old_row, new_row)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pendingTradeID, time.Now().UTC(), actor, reason, oldB, newB,
	)
	return err
}

// InsertDealBlock inserts a new deal_block row and returns its id.
func (r *Repository) InsertDealBlock(ctx context.Context, tx pgx.Tx, b *domain.DealBlock) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO deal_block (instrument_id, trade_date, settle_date, trade_currency, quantity, price, lifecycle)
		 VALUES ($1,$2,$3,$4,$5,$6,'active') RETURNING id`,
		b.InstrumentID, b.TradeDate, b.SettleDate, b.TradeCurrency, b.Quantity.Decimal, b.Price.Decimal,
	).Scan(&id)
	return id, err
}

// InsertDealAllocation inserts a new deal_allocation row and returns its
// id. Lifecycle defaults to active when unset; adjustment planning inserts
// reversal rows pre-deleted so active allocations keep summing to the block
// quantity.
func (r *Repository) InsertDealAllocation(ctx context.Context, tx pgx.Tx, a *domain.DealAllocation) (int64, error) {
	lifecycle := a.Lifecycle
	if lifecycle == "" {
		lifecycle = domain.LifecycleActive
	}
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO deal_allocation (deal_block_id, portfolio_id, quantity, price, is_rounding_adjustment, lifecycle)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		a.DealBlockID, a.PortfolioID, a.Quantity.Decimal, a.Price.Decimal, a.IsRoundingAdjustment, lifecycle,
	).Scan(&id)
	return id, err
}

// GetDealBlock loads a deal_block row by id.
func (r *Repository) GetDealBlock(ctx context.Context, id int64) (*domain.DealBlock, error) {
	var b domain.DealBlock
	var qty, price decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT id, instrument_id, trade_date, settle_date, trade_currency, quantity, price, lifecycle
		 FROM deal_block WHERE id = $1`, id,
	).Scan(&b.ID, &b.InstrumentID, &b.TradeDate, &b.SettleDate, &b.TradeCurrency, &qty, &price, &b.Lifecycle)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Quantity = ledgermath.NewDecimal(qty)
	b.Price = ledgermath.NewDecimal(price)
	return &b, nil
}

// ActiveAllocations returns the currently active allocations of a block.
func (r *Repository) ActiveAllocations(ctx context.Context, blockID int64) ([]domain.DealAllocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, deal_block_id, portfolio_id, quantity, price, is_rounding_adjustment, lifecycle
		 FROM deal_allocation WHERE deal_block_id = $1 AND lifecycle = 'active'
		 ORDER BY portfolio_id`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DealAllocation
	for rows.Next() {
		var a domain.DealAllocation
		var qty, price decimal.Decimal
		if err := rows.Scan(&a.ID, &a.DealBlockID, &a.PortfolioID, &qty, &price, &a.IsRoundingAdjustment, &a.Lifecycle); err != nil {
			return nil, err
		}
		a.Quantity = ledgermath.NewDecimal(qty)
		a.Price = ledgermath.NewDecimal(price)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAllocationsDeleted marks every active allocation of a block as deleted.
func (r *Repository) MarkAllocationsDeleted(ctx context.Context, tx pgx.Tx, blockID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE deal_allocation SET lifecycle = 'deleted' WHERE deal_block_id = $1 AND lifecycle = 'active'`,
		blockID)
	return err
}

// UpdateDealBlock updates a block's quantity, price, and/or lifecycle.
func (r *Repository) UpdateDealBlock(ctx context.Context, tx pgx.Tx, blockID int64, quantity, price *ledgermath.Decimal, lifecycle *domain.Lifecycle) error {
	_, err := tx.Exec(ctx,
		`UPDATE deal_block SET
			quantity  = COALESCE($2, quantity),
			price     = COALESCE($3, price),
			lifecycle = COALESCE($4, lifecycle)
		 WHERE id = $1`,
		blockID, decimalPtrOrNil(quantity), decimalPtrOrNil(price), lifecycle,
	)
	return err
}

func decimalPtrOrNil(d *ledgermath.Decimal) any {
	if d == nil {
		return nil
	}
	return d.Decimal
}

// ChildAllocationIDs returns the staging ids of active allocation-level
// pending trades belonging to the deal block referenced by blockStagingID's
// own deal_block_id, along with that deal_block_id.
func (r *Repository) ChildAllocationIDs(ctx context.Context, blockStagingID int64) ([]int64, int64, error) {
	var dealBlockID *int64
	err := r.pool.QueryRow(ctx, `SELECT deal_block_id FROM pending_trade WHERE id = $1`, blockStagingID).Scan(&dealBlockID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	if dealBlockID == nil {
		return nil, 0, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM pending_trade
		 WHERE deal_block_id = $1 AND level = 'allocation' AND lifecycle = 'active'
		 ORDER BY id`, *dealBlockID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	return ids, *dealBlockID, rows.Err()
}

// BeginTx starts a transaction on the pool.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// ReportCurrencies resolves the report currency of each given portfolio.
func (r *Repository) ReportCurrencies(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_currency FROM portfolio WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var ccy string
		if err := rows.Scan(&id, &ccy); err != nil {
			return nil, err
		}
		out[id] = ccy
	}
	return out, rows.Err()
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
