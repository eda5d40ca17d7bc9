package lifecycle

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
)

// activityAllocate requires portfolio_id != null when level=allocation;
// otherwise it is validation-only.
func activityAllocate(ctx context.Context, e *Executor, stagingID int64) error {
	return runActivity(ctx, e, stagingID, domain.StatusAllocated,
		[]domain.StagingStatus{domain.StatusPosition, domain.StatusAllocated},
		func(ctx context.Context, tx pgx.Tx, t *domain.PendingTrade) (map[string]any, error) {
			if t.Level == domain.LevelAllocation && t.PortfolioID == nil {
				return nil, errors.New("portfolio_id_missing")
			}
			return nil, nil
		})
}
