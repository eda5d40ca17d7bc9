package lifecycle

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
)

// activityPrecheck validates quantity != 0 and price > 0; no side effects
// beyond the status advance.
func activityPrecheck(ctx context.Context, e *Executor, stagingID int64) error {
	return runActivity(ctx, e, stagingID, domain.StatusPreCheck,
		[]domain.StagingStatus{domain.StatusEntry, domain.StatusPreCheck},
		func(ctx context.Context, tx pgx.Tx, t *domain.PendingTrade) (map[string]any, error) {
			if t.Quantity.IsZero() {
				return nil, errors.New("quantity_zero")
			}
			if t.Price.Sign() <= 0 {
				return nil, errors.New("price_invalid")
			}
			return nil, nil
		})
}
