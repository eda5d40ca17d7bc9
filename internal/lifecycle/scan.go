package lifecycle

import (
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
)

func scanPendingTradeRow(row pgx.Row) (*domain.PendingTrade, error) {
	var t domain.PendingTrade
	var qty, price decimal.Decimal
	var qc, rcAmt decimal.NullDecimal
	err := row.Scan(
		&t.ID, &t.Level, &t.DealBlockID, &t.DealAllocationID, &t.PortfolioID, &t.InstrumentID,
		&t.TradeDate, &t.SettleDate, &qty, &price, &t.QuoteCurrency, &t.ReportCurrency,
		&qc, &rcAmt, &t.Status, &t.Lifecycle, &t.EntryVersion,
		&t.SourceSystem, &t.IsRoundingAdjustment, &t.CreatedAt, &t.UpdatedAt,
	)
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
