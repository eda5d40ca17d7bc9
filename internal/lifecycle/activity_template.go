package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/statemachine"
)

// activityScope builds the shared idempotency scope for all four
// activities of one pending trade.
func activityScope(stagingID int64) string {
	return fmt.Sprintf("activity:advance_status:%d", stagingID)
}

func activityKey(to domain.StagingStatus) string {
	return "to:" + string(to)
}

// loadTradeForUpdate loads a pending_trade row within tx, locking it for the
// duration of the activity's transaction.
func loadTradeForUpdate(ctx context.Context, tx pgx.Tx, stagingID int64) (*domain.PendingTrade, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, level, deal_block_id, deal_allocation_id, portfolio_id, instrument_id,
		        trade_date, settle_date, quantity, price, quote_currency, report_currency,
		        qc_gross_amount, rc_gross_amount, status, lifecycle, entry_version,
		        source_system, is_rounding_adjustment, created_at, updated_at
		 FROM pending_trade WHERE id = $1 FOR UPDATE`, stagingID)
	t, err := scanPendingTradeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New("staging_not_found")
	}
	return t, err
}

// runActivity implements the template shared by all four activities:
// idempotency get, load+validate, side effects (via fn), conditional
// advance, store response — all committed in one transaction.
func runActivity(ctx context.Context, e *Executor, stagingID int64, to domain.StagingStatus, allowedFrom []domain.StagingStatus, fn func(ctx context.Context, tx pgx.Tx, t *domain.PendingTrade) (map[string]any, error)) error {
	scope := activityScope(stagingID)
	key := activityKey(to)

	if cached, ok, err := e.idemp.GetResponse(ctx, scope, key); err == nil && ok {
		_ = cached // already-stored response observed; nothing further to do
		return nil
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := loadTradeForUpdate(ctx, tx, stagingID)
	if err != nil {
		return err
	}
	if t.Lifecycle != domain.LifecycleActive {
		return errors.New("staging_not_active")
	}
	allowed := false
	for _, s := range allowedFrom {
		if t.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("unexpected_status:%s", t.Status)
	}

	resp, err := fn(ctx, tx, t)
	if err != nil {
		return err
	}

	if t.Status != to {
		from := t.Status
		err := statemachine.Advance(ctx, tx, stagingID, from, to, "lifecycle_executor", statemachine.TemporalContext{})
		if err != nil && !errors.Is(err, statemachine.ErrAlreadyDone) {
			return err
		}
	}

	if resp == nil {
		resp = map[string]any{"staging_id": stagingID, "status": string(to)}
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := storeIdempotentResponseTx(ctx, tx, scope, key, respBytes); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func storeIdempotentResponseTx(ctx context.Context, tx pgx.Tx, scope, key string, response []byte) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO idempotency_record (scope, key, response)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (scope, key) DO UPDATE SET response = EXCLUDED.response`,
		scope, key, response)
	return err
}
