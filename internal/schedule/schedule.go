// Package schedule wires the EOD position snapshot and ABOR run jobs onto
// a cron scheduler. Job schedules are standard 5-field cron expressions
// (config.EODSnapshotCron/EODAborCron default to daily crontab syntax).
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/backoffice/internal/nav"
	"github.com/aristath/backoffice/internal/position"
)

// Job is a named, runnable scheduled task.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages the background EOD jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New builds a Scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job against a standard 5-field cron expression.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// EODSnapshotJob materializes position_snapshot_eod for every portfolio.
type EODSnapshotJob struct {
	svc *position.Service
	log zerolog.Logger
}

// NewEODSnapshotJob builds an EODSnapshotJob.
func NewEODSnapshotJob(svc *position.Service, log zerolog.Logger) *EODSnapshotJob {
	return &EODSnapshotJob{svc: svc, log: log.With().Str("job", "eod_snapshot").Logger()}
}

// Name identifies the job in scheduler logs.
func (j *EODSnapshotJob) Name() string { return "eod_snapshot" }

// Run snapshots every portfolio's positions as of today (UTC).
func (j *EODSnapshotJob) Run(ctx context.Context) error {
	asof := time.Now().UTC().Truncate(24 * time.Hour)
	rows, err := j.svc.SnapshotEOD(ctx, asof)
	if err != nil {
		return err
	}
	j.log.Info().Int64("rows", rows).Time("asof_date", asof).Msg("eod snapshot complete")
	return nil
}

// ABORRunJob computes and persists the ABOR NAV run for every portfolio,
// consuming the position snapshot the EODSnapshotJob just materialized.
type ABORRunJob struct {
	svc *nav.Service
	log zerolog.Logger
}

// NewABORRunJob builds an ABORRunJob.
func NewABORRunJob(svc *nav.Service, log zerolog.Logger) *ABORRunJob {
	return &ABORRunJob{svc: svc, log: log.With().Str("job", "abor_run").Logger()}
}

// Name identifies the job in scheduler logs.
func (j *ABORRunJob) Name() string { return "abor_run" }

// Run computes the ABOR NAV for every portfolio as of today (UTC).
func (j *ABORRunJob) Run(ctx context.Context) error {
	asof := time.Now().UTC().Truncate(24 * time.Hour)
	portfolios, err := j.svc.ListPortfolios(ctx)
	if err != nil {
		return err
	}
	for _, p := range portfolios {
		if _, err := j.svc.RunABOR(ctx, p.ID, p.ReportCurrency, asof); err != nil {
			j.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("abor run failed")
			continue
		}
	}
	j.log.Info().Int("portfolios", len(portfolios)).Time("asof_date", asof).Msg("abor run complete")
	return nil
}
