// Package position implements the position projection: position_current is
// authoritative for live positions; position_snapshot_eod is a
// materialization upserted by the EOD job.
package position

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Service drives EOD snapshotting.
type Service struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewService builds a Service.
func NewService(pool *pgxpool.Pool, log zerolog.Logger) *Service {
	return &Service{pool: pool, log: log.With().Str("component", "position").Logger()}
}

// SnapshotEOD upserts position_snapshot_eod rows for asofDate from the
// current state of position_current, keyed by (asof_date, portfolio_id,
// instrument_id); reruns for the same date simply refresh the latest values.
func (s *Service) SnapshotEOD(ctx context.Context, asofDate time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO position_snapshot_eod (asof_date, portfolio_id, instrument_id, quantity, cost_basis_rc, through_entry_id)
		 SELECT $1, portfolio_id, instrument_id, quantity, cost_basis_rc, last_journal_entry_id
		 FROM position_current
		 WHERE last_journal_entry_id IS NOT NULL
		 ON CONFLICT (asof_date, portfolio_id, instrument_id) DO UPDATE SET
		   quantity = EXCLUDED.quantity,
		   cost_basis_rc = EXCLUDED.cost_basis_rc,
		   through_entry_id = EXCLUDED.through_entry_id`,
		asofDate,
	)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()
	s.log.Info().Time("asof_date", asofDate).Int64("rows", n).Msg("eod snapshot complete")
	return n, nil
}
