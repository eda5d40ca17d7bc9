package nav

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
)

// priceObservation is the result of a price lookup, carrying audit fields
// the ABOR line items (and nothing else) surface.
type priceObservation struct {
	Price    decimal.Decimal
	AsofTS   time.Time
	SourceID *string
}

type fxObservation struct {
	Rate     decimal.Decimal
	AsofTS   time.Time
	SourceID *string
}

// lookupLatestPrice finds the most recent market_price at or before
// asofTS, any date, any is_eod.
func lookupLatestPrice(ctx context.Context, q pgxQuerier, instrumentID int64, asofTS time.Time) (priceObservation, error) {
	var obs priceObservation
	err := q.QueryRow(ctx,
		`SELECT price, asof_ts, source_id FROM market_price
		 WHERE instrument_id = $1 AND asof_ts <= $2
		 ORDER BY asof_ts DESC LIMIT 1`,
		instrumentID, asofTS,
	).Scan(&obs.Price, &obs.AsofTS, &obs.SourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return obs, apierr.PriceMissing(instrumentID)
	}
	return obs, err
}

// lookupEODPrice requires asof_date = given AND is_eod = true, per the ABOR rule.
func lookupEODPrice(ctx context.Context, q pgxQuerier, instrumentID int64, asofDate time.Time) (priceObservation, error) {
	var obs priceObservation
	err := q.QueryRow(ctx,
		`SELECT price, asof_ts, source_id FROM market_price
		 WHERE instrument_id = $1 AND asof_date = $2 AND is_eod = true
		 ORDER BY asof_ts DESC LIMIT 1`,
		instrumentID, asofDate,
	).Scan(&obs.Price, &obs.AsofTS, &obs.SourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return obs, apierr.PriceMissing(instrumentID)
	}
	return obs, err
}

// lookupLatestFX finds the most recent fx_rate at or before asofTS, any is_eod.
func lookupLatestFX(ctx context.Context, q pgxQuerier, base, quote string, asofTS time.Time) (fxObservation, error) {
	if base == quote {
		return fxObservation{Rate: decimal.NewFromInt(1), AsofTS: asofTS}, nil
	}
	var obs fxObservation
	err := q.QueryRow(ctx,
		`SELECT rate, asof_ts, source_id FROM fx_rate
		 WHERE base_ccy = $1 AND quote_ccy = $2 AND asof_ts <= $3
		 ORDER BY asof_ts DESC LIMIT 1`,
		base, quote, asofTS,
	).Scan(&obs.Rate, &obs.AsofTS, &obs.SourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return obs, apierr.FXRateMissing(base, quote)
	}
	return obs, err
}

// lookupEODFX requires is_eod = true AND asof_ts <= given.
func lookupEODFX(ctx context.Context, q pgxQuerier, base, quote string, asofTS time.Time) (fxObservation, error) {
	if base == quote {
		return fxObservation{Rate: decimal.NewFromInt(1), AsofTS: asofTS}, nil
	}
	var obs fxObservation
	err := q.QueryRow(ctx,
		`SELECT rate, asof_ts, source_id FROM fx_rate
		 WHERE base_ccy = $1 AND quote_ccy = $2 AND is_eod = true AND asof_ts <= $3
		 ORDER BY asof_ts DESC LIMIT 1`,
		base, quote, asofTS,
	).Scan(&obs.Rate, &obs.AsofTS, &obs.SourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return obs, apierr.FXRateMissing(base, quote)
	}
	return obs, err
}

// pgxQuerier is the shared query surface used by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ pgxQuerier = (*pgxpool.Pool)(nil)
var _ pgxQuerier = (pgx.Tx)(nil)
