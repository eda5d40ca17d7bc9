package lifecycle

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
)

// activitySettle is validation-only; it simply advances to settled.
func activitySettle(ctx context.Context, e *Executor, stagingID int64) error {
	return runActivity(ctx, e, stagingID, domain.StatusSettled,
		[]domain.StagingStatus{domain.StatusAllocated, domain.StatusSettled},
		func(ctx context.Context, tx pgx.Tx, t *domain.PendingTrade) (map[string]any, error) {
			return nil, nil
		})
}
