// Package database wraps a pgx connection pool and the embedded schema
// migrations behind a small Config/New/HealthCheck/Stats surface.
package database

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Config controls pool construction.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DB wraps a pgxpool.Pool with a component logger.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// New parses Config, opens the pool, and verifies connectivity with a ping.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database: open pool: %w", err)
	}

	db := &DB{Pool: pool, log: log.With().Str("component", "database").Logger()}
	if err := db.HealthCheck(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: health check: %w", err)
	}
	return db, nil
}

// Close releases the pool.
func (d *DB) Close() {
	d.Pool.Close()
}

// HealthCheck pings the pool.
func (d *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.Pool.Ping(ctx)
}

// Stats reports pool utilization.
func (d *DB) Stats() map[string]int32 {
	s := d.Pool.Stat()
	return map[string]int32{
		"total_conns":    s.TotalConns(),
		"idle_conns":     s.IdleConns(),
		"acquired_conns": s.AcquiredConns(),
		"max_conns":      s.MaxConns(),
	}
}

// AdvisoryLockPosition takes a transaction-scoped advisory lock on the
// (portfolio_id, instrument_id) pair, serializing concurrent additive
// updates to position_current.
func AdvisoryLockPosition(ctx context.Context, tx pgx.Tx, portfolioID, instrumentID int64) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		fmt.Sprintf("%d:%d", portfolioID, instrumentID),
	)
	return err
}

// Migrate runs every pending embedded migration against the database.
func (d *DB) Migrate(databaseURL string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("database: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("database: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("database: migrate up: %w", err)
	}
	d.log.Info().Msg("migrations applied")
	return nil
}
