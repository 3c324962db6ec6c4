// Package nexus is a three-tier in-memory cache with promotion on read. Entries
// expire lazily per tier; a warm L2 or L3 hit is copied one tier closer.
package nexus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/nexus/internal/cache/tiered"
	"goflare.io/nexus/internal/config"
)

// Option 定義初始化 Cache 的選項
type Option = config.Option

type (
	Tier   = tiered.Tier
	Stats  = tiered.Stats
	Loader = tiered.Loader
)

const (
	L1 = tiered.L1
	L2 = tiered.L2
	L3 = tiered.L3
)

// WithLogger 設置自定義的日誌記錄器
func WithLogger(logger *zap.Logger) Option {
	return config.WithLogger(logger)
}

// WithTierTTLs sets the lifetime of an entry in each tier. They must be increasing.
func WithTierTTLs(l1, l2, l3 time.Duration) Option {
	return config.WithTierTTLs(l1, l2, l3)
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return config.WithClock(clock)
}

// WithSweepInterval starts a background sweeper that deletes stale entries.
func WithSweepInterval(interval time.Duration) Option {
	return config.WithSweepInterval(interval)
}

// WithBoundedTiers caps every local tier at maxEntries.
func WithBoundedTiers(maxEntries uint64) Option {
	return config.WithBoundedTiers(maxEntries)
}

// WithRedis backs L3 with redis.
func WithRedis(opts *redis.Options) Option {
	return config.WithRedis(opts)
}

func WithBloomFilter(enabled bool, expectedItems uint, falsePositiveRate float64) Option {
	return config.WithBloomFilter(enabled, expectedItems, falsePositiveRate)
}

// WithSerialization 設置序列化方式 ("json" 或 "gob")
func WithSerialization(serializer string) Option {
	return config.WithSerialization(serializer)
}

// WithGobTypes registers the value types stored in a redis L3 under gob serialization.
func WithGobTypes(values ...any) Option {
	return config.WithGobTypes(values...)
}

// Cache 定義 nexus 的主要結構體
type Cache struct {
	tiered *tiered.Cache
	logger *zap.Logger
}

// NewCache 初始化快取，接受多個配置選項
func NewCache(ctx context.Context, opts ...Option) (*Cache, error) {
	cfg, err := config.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	tc, err := tiered.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TieredCache: %w", err)
	}

	return &Cache{
		tiered: tc,
		logger: cfg.Logger,
	}, nil
}

// Get 獲取快取項目
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	return c.tiered.Get(ctx, key)
}

// Set 設置快取項目，預設寫入 L1
func (c *Cache) Set(ctx context.Context, key string, value any, tier ...Tier) error {
	return c.tiered.Set(ctx, key, value, tier...)
}

// Fetch returns key, loading and storing it into tier on a miss.
func (c *Cache) Fetch(ctx context.Context, key string, tier Tier, loader Loader) (any, error) {
	return c.tiered.Fetch(ctx, key, tier, loader)
}

// Warmup 預先載入多個鍵
func (c *Cache) Warmup(ctx context.Context, tier Tier, loader Loader, keys ...string) error {
	return c.tiered.Warmup(ctx, tier, loader, keys...)
}

func (c *Cache) Stats(ctx context.Context) Stats {
	return c.tiered.Stats(ctx)
}

// Sweep deletes stale entries and reports how many were removed.
func (c *Cache) Sweep(ctx context.Context) int {
	return c.tiered.Sweep(ctx)
}

// Close 關閉快取，釋放資源
func (c *Cache) Close() error {
	return c.tiered.Close()
}
