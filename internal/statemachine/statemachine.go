// Package statemachine implements the sole legal writer of pending_trade
// status: a conditional update plus re-read-and-classify on zero rows
// affected.
package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aristath/backoffice/internal/domain"
)

// ErrAlreadyDone signals the target status was already reached; treated as
// a no-op success by callers.
var ErrAlreadyDone = errors.New("statemachine: already done")

// InvalidTransitionError carries the machine reason for a rejected advance.
type InvalidTransitionError struct {
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("statemachine: invalid_transition(%s)", e.Reason)
}

// TemporalContext identifies the workflow/activity invocation driving an
// advance.
type TemporalContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// Advance executes the conditional status transition within tx. On zero
// rows affected it re-reads the row and classifies: lifecycle != active is
// an InvalidTransitionError("lifecycle_not_active"); status already == to
// is ErrAlreadyDone; anything else is InvalidTransitionError("status_mismatch").
// A successful update increments entry_version.
func Advance(ctx context.Context, tx pgx.Tx, stagingID int64, from, to domain.StagingStatus, triggeredBy string, tc TemporalContext) error {
	tag, err := tx.Exec(ctx,
		`UPDATE pending_trade
		   SET status = $1, entry_version = entry_version + 1, updated_at = now()
		 WHERE id = $2 AND status = $3 AND lifecycle = 'active'`,
		to, stagingID, from,
	)
	if err != nil {
		return fmt.Errorf("statemachine: advance: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status domain.StagingStatus
	var lifecycle domain.Lifecycle
	err = tx.QueryRow(ctx,
		`SELECT status, lifecycle FROM pending_trade WHERE id = $1`, stagingID,
	).Scan(&status, &lifecycle)
	if errors.Is(err, pgx.ErrNoRows) {
		return &InvalidTransitionError{Reason: "staging_not_found"}
	}
	if err != nil {
		return fmt.Errorf("statemachine: reclassify: %w", err)
	}

	if lifecycle != domain.LifecycleActive {
		return &InvalidTransitionError{Reason: "lifecycle_not_active"}
	}
	if status == to {
		return ErrAlreadyDone
	}
	return &InvalidTransitionError{Reason: "status_mismatch"}
}
