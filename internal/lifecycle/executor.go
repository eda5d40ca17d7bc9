// Package lifecycle implements the trade-lifecycle workflow and its four
// activities. Executor stands in for a durable workflow orchestrator,
// driving each activity with a per-attempt timeout and an exponential
// retry/backoff loop.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/backoffice/internal/cache"
	"github.com/aristath/backoffice/internal/idempotency"
)

// activityFunc is the shape shared by every lifecycle activity.
type activityFunc func(ctx context.Context, e *Executor, stagingID int64) error

// activityStep pairs an activity with its start-to-close timeout.
type activityStep struct {
	name    string
	fn      activityFunc
	timeout time.Duration
}

// Executor runs the four-activity pipeline for a pending trade, with up
// to 10 attempts per activity and exponential backoff.
type Executor struct {
	pool  *pgxpool.Pool
	idemp *idempotency.Store
	cache *cache.Cache
	log   zerolog.Logger

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewExecutor builds an Executor.
func NewExecutor(pool *pgxpool.Pool, idemp *idempotency.Store, c *cache.Cache, log zerolog.Logger) *Executor {
	return &Executor{
		pool:         pool,
		idemp:        idemp,
		cache:        c,
		log:          log.With().Str("component", "lifecycle_executor").Logger(),
		maxAttempts:  10,
		initialDelay: 50 * time.Millisecond,
		maxDelay:     5 * time.Second,
	}
}

// WorkflowRun identifies one execution of the staging workflow.
type WorkflowRun struct {
	WorkflowID string
	RunID      string
}

// StartStagingWorkflow drives precheck -> post_position -> allocate ->
// settle in strict sequence for stagingID, keyed by "staging-{id}". The
// workflow itself writes no business state; all writes live in the
// activities so replay stays deterministic.
func (e *Executor) StartStagingWorkflow(ctx context.Context, stagingID int64) (WorkflowRun, error) {
	run := WorkflowRun{WorkflowID: fmt.Sprintf("staging-%d", stagingID), RunID: uuid.NewString()}

	steps := []activityStep{
		{"precheck", activityPrecheck, 30 * time.Second},
		{"post_position", activityPostPosition, 60 * time.Second},
		{"allocate", activityAllocate, 60 * time.Second},
		{"settle", activitySettle, 60 * time.Second},
	}

	for _, step := range steps {
		if err := e.runWithRetry(ctx, step, stagingID); err != nil {
			return run, fmt.Errorf("lifecycle: %s: %w", step.name, err)
		}
	}
	return run, nil
}

// runWithRetry executes one activity up to maxAttempts times with
// exponential backoff, honoring a per-attempt timeout.
func (e *Executor) runWithRetry(ctx context.Context, step activityStep, stagingID int64) error {
	delay := e.initialDelay
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, step.timeout)
		err := step.fn(attemptCtx, e, stagingID)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		e.log.Warn().Err(err).Str("activity", step.name).Int("attempt", attempt).Int64("staging_id", stagingID).Msg("activity failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
	}
	return lastErr
}
