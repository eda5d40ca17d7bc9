package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/backoffice/internal/cache"
	"github.com/aristath/backoffice/internal/config"
	"github.com/aristath/backoffice/internal/corpaction"
	corpactionhandlers "github.com/aristath/backoffice/internal/corpaction/handlers"
	"github.com/aristath/backoffice/internal/database"
	"github.com/aristath/backoffice/internal/dealplan"
	"github.com/aristath/backoffice/internal/idempotency"
	"github.com/aristath/backoffice/internal/lifecycle"
	"github.com/aristath/backoffice/internal/logger"
	"github.com/aristath/backoffice/internal/nav"
	navhandlers "github.com/aristath/backoffice/internal/nav/handlers"
	"github.com/aristath/backoffice/internal/position"
	positionhandlers "github.com/aristath/backoffice/internal/position/handlers"
	"github.com/aristath/backoffice/internal/schedule"
	"github.com/aristath/backoffice/internal/server"
	"github.com/aristath/backoffice/internal/staging"
	staginghandlers "github.com/aristath/backoffice/internal/staging/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("starting backoffice server")

	ctx := context.Background()

	db, err := database.New(ctx, database.Config{URL: cfg.DatabaseURL}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.New(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer redisCache.Close()

	idemp := idempotency.New(db.Pool)

	stagingRepo := staging.NewRepository(db.Pool)
	stagingSvc := staging.NewService(stagingRepo, idemp)
	planner := dealplan.NewPlanner(stagingRepo)
	executor := lifecycle.NewExecutor(db.Pool, idemp, redisCache, log)
	stagingHandler := staginghandlers.NewHandler(stagingSvc, planner, executor, log)

	positionSvc := position.NewService(db.Pool, log)
	positionHandler := positionhandlers.NewHandler(positionSvc, log)

	navSvc := nav.NewService(db.Pool, redisCache, log)
	navHandler := navhandlers.NewHandler(navSvc, idemp, log)

	corpactionRepo := corpaction.NewRepository(db.Pool)
	corpactionSvc := corpaction.NewService(corpactionRepo, idemp, log)
	corpactionHandler := corpactionhandlers.NewHandler(corpactionSvc, log)

	sched := schedule.New(log)
	if err := sched.AddJob(cfg.EODSnapshotCron, schedule.NewEODSnapshotJob(positionSvc, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register eod snapshot job")
	}
	if err := sched.AddJob(cfg.EODAborCron, schedule.NewABORRunJob(navSvc, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register abor run job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:    cfg.HTTPPort,
		Log:     log,
		DevMode: cfg.LogPretty,
		Modules: []server.RouteRegistrar{
			stagingHandler,
			positionHandler,
			navHandler,
			corpactionHandler,
		},
		HealthFn: db.HealthCheck,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("port", cfg.HTTPPort).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
