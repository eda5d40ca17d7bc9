package nav

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
)

// insertOrGetIBORRun implements the insert-or-return-existing pattern over
// nav_ibor_run's partial unique index on (portfolio_id, run_type, asof_ts)
// (snapshot runs only). Realtime runs are never persisted as headers since
// they are purely computed on read.
func (s *Service) insertOrGetIBORRun(ctx context.Context, portfolioID int64, runType domain.NAVRunType, asofTS time.Time, idempScope, idempKey string) (int64, bool, error) {
	var scope, key *string
	if idempKey != "" {
		scope, key = &idempScope, &idempKey
	}
	var id int64
	var status domain.NAVRunStatus
	err := s.pool.QueryRow(ctx,
		`INSERT INTO nav_ibor_run (portfolio_id, run_type, asof_ts, status, idempotency_scope, idempotency_key)
		 VALUES ($1, $2, $3, 'running', $4, $5)
		 ON CONFLICT (portfolio_id, run_type, asof_ts) WHERE run_type = 'snapshot'
		 DO UPDATE SET portfolio_id = nav_ibor_run.portfolio_id
		 RETURNING id, status`,
		portfolioID, runType, asofTS, scope, key,
	).Scan(&id, &status)
	if err != nil {
		return 0, false, err
	}
	return id, status == domain.NAVCompleted, nil
}

func (s *Service) persistIBORResult(ctx context.Context, runID int64, val Valuation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO nav_ibor_result (nav_run_id, nav_rc) VALUES ($1, $2)
		 ON CONFLICT (nav_run_id) DO UPDATE SET nav_rc = EXCLUDED.nav_rc`,
		runID, val.NAVRC,
	); err != nil {
		return err
	}
	for _, item := range val.LineItems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO nav_ibor_line_item (nav_run_id, instrument_id, quantity, price, fx_rate, market_value_rc)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			runID, item.InstrumentID, item.Quantity.Decimal, item.Price.Decimal, item.FXRate.Decimal, item.MarketValueRC.Decimal,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE nav_ibor_run SET status = 'completed' WHERE id = $1`, runID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) failIBORRun(ctx context.Context, runID int64) {
	_, _ = s.pool.Exec(ctx, `UPDATE nav_ibor_run SET status = 'failed' WHERE id = $1`, runID)
}

// insertOrGetABORRun mirrors insertOrGetIBORRun for the ABOR sibling table,
// whose unique index on (portfolio_id, run_type, asof_date) applies
// unconditionally since nav_abor_run carries only the 'eod' run_type.
func (s *Service) insertOrGetABORRun(ctx context.Context, portfolioID int64, asofDate time.Time) (int64, bool, error) {
	var id int64
	var status domain.NAVRunStatus
	err := s.pool.QueryRow(ctx,
		`INSERT INTO nav_abor_run (portfolio_id, run_type, asof_date, status)
		 VALUES ($1, 'eod', $2, 'running')
		 ON CONFLICT (portfolio_id, run_type, asof_date)
		 DO UPDATE SET portfolio_id = nav_abor_run.portfolio_id
		 RETURNING id, status`,
		portfolioID, asofDate,
	).Scan(&id, &status)
	if err != nil {
		return 0, false, err
	}
	return id, status == domain.NAVCompleted, nil
}

func (s *Service) persistABORResult(ctx context.Context, runID int64, val Valuation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO nav_abor_result (nav_run_id, nav_rc) VALUES ($1, $2)
		 ON CONFLICT (nav_run_id) DO UPDATE SET nav_rc = EXCLUDED.nav_rc`,
		runID, val.NAVRC,
	); err != nil {
		return err
	}
	for _, item := range val.LineItems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO nav_abor_line_item
				(nav_run_id, instrument_id, quantity, price, fx_rate, market_value_rc,
				 price_asof_ts, price_source_id, fx_rate_asof_ts, fx_rate_source_id)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			runID, item.InstrumentID, item.Quantity.Decimal, item.Price.Decimal, item.FXRate.Decimal, item.MarketValueRC.Decimal,
			item.PriceAsofTS, item.PriceSourceID, item.FXRateAsofTS, item.FXRateSourceID,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE nav_abor_run SET status = 'completed' WHERE id = $1`, runID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) failABORRun(ctx context.Context, runID int64) {
	_, _ = s.pool.Exec(ctx, `UPDATE nav_abor_run SET status = 'failed' WHERE id = $1`, runID)
}

// PortfolioReportCurrency loads a portfolio's fixed reporting currency.
func (s *Service) PortfolioReportCurrency(ctx context.Context, portfolioID int64) (string, error) {
	var rc string
	err := s.pool.QueryRow(ctx, `SELECT report_currency FROM portfolio WHERE id = $1`, portfolioID).Scan(&rc)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errPortfolioNotFound
	}
	return rc, err
}

var errPortfolioNotFound = errors.New("nav: portfolio not found")

// ListPortfolios returns every portfolio id and its report currency, used by
// the scheduled ABOR run job to sweep every portfolio at EOD.
func (s *Service) ListPortfolios(ctx context.Context) ([]PortfolioRef, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, report_currency FROM portfolio ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PortfolioRef
	for rows.Next() {
		var ref PortfolioRef
		if err := rows.Scan(&ref.ID, &ref.ReportCurrency); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// PortfolioRef is a minimal (id, report_currency) pair.
type PortfolioRef struct {
	ID             int64
	ReportCurrency string
}
