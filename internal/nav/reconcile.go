package nav

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/apierr"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// ReconcileResult is the outcome of comparing a completed ABOR run against a
// received external NAV figure.
type ReconcileResult struct {
	PortfolioID   int64           `json:"portfolio_id"`
	AsofDate      time.Time       `json:"asof_date"`
	InternalNAVRC decimal.Decimal `json:"internal_nav_rc"`
	ExternalNAV   decimal.Decimal `json:"external_nav"`
	Difference    decimal.Decimal `json:"difference"`
}

// RecordExternalNAV stores a received external NAV figure for later
// reconciliation against the internally computed ABOR NAV.
func (s *Service) RecordExternalNAV(ctx context.Context, portfolioID int64, asofDate time.Time, externalNAV decimal.Decimal, source string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO abor_external_nav (portfolio_id, asof_date, external_nav, source)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (portfolio_id, asof_date) DO UPDATE SET
		   external_nav = EXCLUDED.external_nav, source = EXCLUDED.source, received_at = now()`,
		portfolioID, asofDate, externalNAV, source,
	)
	return err
}

// Reconcile compares the completed ABOR run for (portfolioID, asofDate)
// against a previously recorded external NAV figure and persists the
// difference, returning apierr "nav_not_found" if either side is missing.
func (s *Service) Reconcile(ctx context.Context, portfolioID int64, asofDate time.Time) (*ReconcileResult, error) {
	_, internalNAV, err := s.GetABORResult(ctx, portfolioID, asofDate)
	if err != nil {
		return nil, err
	}

	var externalNAV decimal.Decimal
	err = s.pool.QueryRow(ctx,
		`SELECT external_nav FROM abor_external_nav WHERE portfolio_id = $1 AND asof_date = $2`,
		portfolioID, asofDate,
	).Scan(&externalNAV)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.New("nav_not_found")
	}
	if err != nil {
		return nil, err
	}

	diff := ledgermath.RoundMoney(internalNAV.Sub(externalNAV))
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO abor_nav_reconcile (portfolio_id, asof_date, internal_nav_rc, external_nav, difference)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (portfolio_id, asof_date) DO UPDATE SET
		   internal_nav_rc = EXCLUDED.internal_nav_rc, external_nav = EXCLUDED.external_nav,
		   difference = EXCLUDED.difference, reconciled_at = now()`,
		portfolioID, asofDate, internalNAV, externalNAV, diff,
	); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		PortfolioID:   portfolioID,
		AsofDate:      asofDate,
		InternalNAVRC: internalNAV,
		ExternalNAV:   externalNAV,
		Difference:    diff,
	}, nil
}
