// Package nav implements the NAV engine: IBOR realtime/snapshot valuation
// from position_current, ABOR end-of-day valuation from
// position_snapshot_eod, and reconciliation of ABOR runs against externally
// supplied NAV figures.
package nav

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/cache"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// Service computes and persists NAV runs.
type Service struct {
	pool  *pgxpool.Pool
	cache *cache.Cache
	log   zerolog.Logger
}

// NewService builds a Service. cache may be nil.
func NewService(pool *pgxpool.Pool, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{pool: pool, cache: c, log: log.With().Str("component", "nav").Logger()}
}

// Valuation is the computed (unpersisted) NAV of a portfolio.
type Valuation struct {
	NAVRC     decimal.Decimal
	LineItems []domain.NAVLineItem
}

type positionRow struct {
	instrumentID   int64
	instrumentType domain.InstrumentType
	quoteCurrency  string
	quantity       decimal.Decimal
}

// ComputeIBOR values portfolioID's current positions as of asofTS in
// reportCurrency. It does not persist anything.
func (s *Service) ComputeIBOR(ctx context.Context, portfolioID int64, reportCurrency string, asofTS time.Time) (Valuation, error) {
	rows, err := s.loadCurrentPositions(ctx, portfolioID)
	if err != nil {
		return Valuation{}, err
	}
	return s.valuePositions(ctx, rows, reportCurrency, asofTS, false)
}

// ComputeABOR values portfolioID's EOD snapshot positions for asofDate,
// with asof_ts fixed to 23:59:59 UTC of that date.
func (s *Service) ComputeABOR(ctx context.Context, portfolioID int64, reportCurrency string, asofDate time.Time) (Valuation, error) {
	asofTS := time.Date(asofDate.Year(), asofDate.Month(), asofDate.Day(), 23, 59, 59, 0, time.UTC)
	rows, err := s.loadSnapshotPositions(ctx, portfolioID, asofDate)
	if err != nil {
		return Valuation{}, err
	}
	return s.valuePositions(ctx, rows, reportCurrency, asofTS, true)
}

func (s *Service) loadCurrentPositions(ctx context.Context, portfolioID int64) ([]positionRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.instrument_id, i.instrument_type, i.quote_currency, p.quantity
		 FROM position_current p JOIN instrument i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = $1 AND p.quantity <> 0`,
		portfolioID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

func (s *Service) loadSnapshotPositions(ctx context.Context, portfolioID int64, asofDate time.Time) ([]positionRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.instrument_id, i.instrument_type, i.quote_currency, p.quantity
		 FROM position_snapshot_eod p JOIN instrument i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = $1 AND p.asof_date = $2 AND p.quantity <> 0`,
		portfolioID, asofDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

func scanPositionRows(rows pgx.Rows) ([]positionRow, error) {
	var out []positionRow
	for rows.Next() {
		var r positionRow
		if err := rows.Scan(&r.instrumentID, &r.instrumentType, &r.quoteCurrency, &r.quantity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Service) valuePositions(ctx context.Context, rows []positionRow, reportCurrency string, asofTS time.Time, eod bool) (Valuation, error) {
	nav := decimal.Zero
	items := make([]domain.NAVLineItem, 0, len(rows))
	for _, r := range rows {
		if r.instrumentType == domain.InstrumentCash {
			mv := ledgermath.RoundMoney(r.quantity)
			nav = nav.Add(mv)
			items = append(items, domain.NAVLineItem{
				InstrumentID:  r.instrumentID,
				Quantity:      ledgermath.NewDecimal(r.quantity),
				Price:         ledgermath.NewDecimal(decimal.NewFromInt(1)),
				FXRate:        ledgermath.NewDecimal(decimal.NewFromInt(1)),
				MarketValueRC: ledgermath.NewDecimal(mv),
			})
			continue
		}

		var priceObs priceObservation
		var fxObs fxObservation
		var err error
		if eod {
			asofDate := time.Date(asofTS.Year(), asofTS.Month(), asofTS.Day(), 0, 0, 0, 0, time.UTC)
			priceObs, err = lookupEODPrice(ctx, s.pool, r.instrumentID, asofDate)
			if err == nil {
				fxObs, err = lookupEODFX(ctx, s.pool, r.quoteCurrency, reportCurrency, asofTS)
			}
		} else {
			priceObs, err = lookupLatestPrice(ctx, s.pool, r.instrumentID, asofTS)
			if err == nil {
				fxObs, err = lookupLatestFX(ctx, s.pool, r.quoteCurrency, reportCurrency, asofTS)
			}
		}
		if err != nil {
			return Valuation{}, err
		}

		mv := ledgermath.RoundMoney(r.quantity.Mul(priceObs.Price).Mul(fxObs.Rate))
		nav = nav.Add(mv)

		item := domain.NAVLineItem{
			InstrumentID:  r.instrumentID,
			Quantity:      ledgermath.NewDecimal(r.quantity),
			Price:         ledgermath.NewDecimal(priceObs.Price),
			FXRate:        ledgermath.NewDecimal(fxObs.Rate),
			MarketValueRC: ledgermath.NewDecimal(mv),
		}
		if eod {
			pts, fts := priceObs.AsofTS, fxObs.AsofTS
			item.PriceAsofTS = &pts
			item.PriceSourceID = priceObs.SourceID
			item.FXRateAsofTS = &fts
			item.FXRateSourceID = fxObs.SourceID
		}
		items = append(items, item)
	}
	return Valuation{NAVRC: ledgermath.RoundMoney(nav), LineItems: items}, nil
}

// SnapshotIBOR computes and persists an IBOR NAV run of type "snapshot" for
// the given asofTS, returning the (possibly pre-existing) run id. The
// caller's idempotency scope/key are recorded on the run header for audit.
func (s *Service) SnapshotIBOR(ctx context.Context, portfolioID int64, reportCurrency string, asofTS time.Time, idempScope, idempKey string) (int64, error) {
	runID, existed, err := s.insertOrGetIBORRun(ctx, portfolioID, domain.NAVSnapshot, asofTS, idempScope, idempKey)
	if err != nil {
		return 0, err
	}
	if existed {
		return runID, nil
	}

	val, err := s.ComputeIBOR(ctx, portfolioID, reportCurrency, asofTS)
	if err != nil {
		s.failIBORRun(ctx, runID)
		return 0, err
	}
	if err := s.persistIBORResult(ctx, runID, val); err != nil {
		s.failIBORRun(ctx, runID)
		return 0, err
	}
	if s.cache != nil {
		s.cache.SetIBORNav(ctx, portfolioID, cache.IBORNavEntry{NAVRC: ledgermath.Canonical(val.NAVRC), AsofTS: asofTS})
	}
	return runID, nil
}

// RunABOR computes and persists an ABOR NAV run for asofDate, returning the
// (possibly pre-existing) run id.
func (s *Service) RunABOR(ctx context.Context, portfolioID int64, reportCurrency string, asofDate time.Time) (int64, error) {
	runID, existed, err := s.insertOrGetABORRun(ctx, portfolioID, asofDate)
	if err != nil {
		return 0, err
	}
	if existed {
		return runID, nil
	}

	val, err := s.ComputeABOR(ctx, portfolioID, reportCurrency, asofDate)
	if err != nil {
		s.failABORRun(ctx, runID)
		return 0, err
	}
	if err := s.persistABORResult(ctx, runID, val); err != nil {
		s.failABORRun(ctx, runID)
		return 0, err
	}
	return runID, nil
}

// GetABORResult returns the persisted ABOR run id and nav_rc for asofDate,
// or apierr "nav_not_found" if no completed run exists.
func (s *Service) GetABORResult(ctx context.Context, portfolioID int64, asofDate time.Time) (int64, decimal.Decimal, error) {
	var runID int64
	var navRC decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT r.id, res.nav_rc FROM nav_abor_run r
		 JOIN nav_abor_result res ON res.nav_run_id = r.id
		 WHERE r.portfolio_id = $1 AND r.asof_date = $2 AND r.status = 'completed'`,
		portfolioID, asofDate,
	).Scan(&runID, &navRC)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, decimal.Decimal{}, apierr.New("nav_not_found")
	}
	return runID, navRC, err
}
