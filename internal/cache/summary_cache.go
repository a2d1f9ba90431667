package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitalhq/pulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SummaryCache is the read-side cache between the rollup store and the
// dashboard API. It is best effort: a missed invalidation degrades
// freshness until the TTL expires, never correctness, because writes
// always go through the store.
type SummaryCache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, log *zap.Logger, cfg config.CacheConfig) *SummaryCache {
	ttl := cfg.SummaryTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SummaryCache{
		client: client,
		log:    log.Named("cache.summary"),
		ttl:    ttl,
	}
}

// DailyKey caches one rollup row; WeekKey and MonthKey cache the
// aggregate views that span it.
func DailyKey(userID int64, date string) string {
	return fmt.Sprintf("pulse:summary:%d:day:%s", userID, date)
}

func WeekKey(userID int64, year, week int) string {
	return fmt.Sprintf("pulse:summary:%d:week:%d-%02d", userID, year, week)
}

func MonthKey(userID int64, year int, month time.Month) string {
	return fmt.Sprintf("pulse:summary:%d:month:%d-%02d", userID, year, int(month))
}

func (c *SummaryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("cache read failed", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}
	return data, true
}

func (c *SummaryCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Debug("cache write failed", zap.Error(err), zap.String("key", key))
	}
}

// Invalidate drops the daily entry for (user, date) and every
// aggregate entry spanning that date. Called after each applied delta.
func (c *SummaryCache) Invalidate(ctx context.Context, userID int64, date time.Time) {
	if c == nil || c.client == nil {
		return
	}
	date = date.UTC()
	year, week := date.ISOWeek()
	keys := []string{
		DailyKey(userID, date.Format("2006-01-02")),
		WeekKey(userID, year, week),
		MonthKey(userID, date.Year(), date.Month()),
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Debug("cache invalidation failed", zap.Error(err), zap.Int64("user_id", userID))
	}
}

var Module = fx.Module("cache",
	fx.Provide(func(client *redis.Client, log *zap.Logger, cfg config.Config) *SummaryCache {
		return NewSummaryCache(client, log, cfg.Cache)
	}),
)
