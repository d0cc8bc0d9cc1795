// Package cache keeps hot payment summaries in Redis so the status endpoint
// does not hit Postgres on every poll from the order-tracking page.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/config"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

func InitRedis(cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// PaymentCache is a read-through cache of owner-facing payment summaries,
// keyed by order id. Nil receiver or nil client disables caching entirely,
// which keeps tests and degraded deployments simple.
type PaymentCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPaymentCache(rdb *redis.Client, ttl time.Duration) *PaymentCache {
	return &PaymentCache{rdb: rdb, ttl: ttl}
}

func (c *PaymentCache) enabled() bool {
	return c != nil && c.rdb != nil
}

func key(orderID int64) string {
	return fmt.Sprintf("payment:order:%d", orderID)
}

// Entry carries the owning user alongside the summary so cache hits can be
// authorized without a round trip to Postgres.
type Entry struct {
	UserID  int64                 `json:"userId"`
	Summary models.PaymentSummary `json:"summary"`
}

func (c *PaymentCache) GetSummary(ctx context.Context, orderID int64) (*Entry, bool) {
	if !c.enabled() {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key(orderID)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (c *PaymentCache) SetSummary(ctx context.Context, orderID int64, entry Entry) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(orderID), data, c.ttl).Err()
}

// Invalidate drops the cached summary after a settlement or refund changes it.
func (c *PaymentCache) Invalidate(ctx context.Context, orderID int64) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Del(ctx, key(orderID)).Err()
}
