// Package cache implements the write-through hot-read cache over redis.
// A cache miss or write failure is never fatal; readers fall back to the
// database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps a redis client with the position/NAV write-through helpers.
type Cache struct {
	client *redis.Client
	log    zerolog.Logger
}

// New builds a Cache from a redis connection URL.
func New(url string, log zerolog.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	return &Cache{client: redis.NewClient(opt), log: log.With().Str("component", "cache").Logger()}, nil
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.client.Close() }

func positionKey(portfolioID, instrumentID int64) string {
	return fmt.Sprintf("position:%d:%d", portfolioID, instrumentID)
}

func iborNavKey(portfolioID int64) string {
	return fmt.Sprintf("nav:ibor:%d", portfolioID)
}

// PositionEntry is the JSON payload written to a position cache key.
type PositionEntry struct {
	Quantity    string    `json:"quantity"`
	VersionUUID string    `json:"version_uuid"`
	UpdatedAt   time.Time `json:"updated_at"`
	Source      string    `json:"source"`
}

// SetPosition write-throughs a position_current row. Failures are logged,
// not returned: a cache miss downstream simply falls back to the database.
func (c *Cache) SetPosition(ctx context.Context, portfolioID, instrumentID int64, entry PositionEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal position cache entry")
		return
	}
	if err := c.client.Set(ctx, positionKey(portfolioID, instrumentID), b, 0).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", positionKey(portfolioID, instrumentID)).Msg("position cache write failed")
	}
}

// GetPosition reads a cached position entry, returning ok=false on miss or
// any error (never fatal to the caller).
func (c *Cache) GetPosition(ctx context.Context, portfolioID, instrumentID int64) (entry PositionEntry, ok bool) {
	b, err := c.client.Get(ctx, positionKey(portfolioID, instrumentID)).Bytes()
	if err != nil {
		return PositionEntry{}, false
	}
	if err := json.Unmarshal(b, &entry); err != nil {
		return PositionEntry{}, false
	}
	return entry, true
}

// IBORNavEntry is the JSON payload written to an IBOR NAV cache key.
type IBORNavEntry struct {
	NAVRC  string    `json:"nav_rc"`
	AsofTS time.Time `json:"asof_ts"`
}

// SetIBORNav write-throughs the latest computed IBOR NAV for a portfolio.
func (c *Cache) SetIBORNav(ctx context.Context, portfolioID int64, entry IBORNavEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal nav cache entry")
		return
	}
	if err := c.client.Set(ctx, iborNavKey(portfolioID), b, 0).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", iborNavKey(portfolioID)).Msg("nav cache write failed")
	}
}
