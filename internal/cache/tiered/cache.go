// Package tiered implements a three-level in-memory cache. Reads walk the tiers from
// L1 to L3 and promote warm entries one tier up; expiry is lazy.
package tiered

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/nexus/internal/cache/limited"
	"goflare.io/nexus/internal/cache/remote"
	"goflare.io/nexus/internal/config"
	"goflare.io/nexus/internal/models"
	"goflare.io/nexus/internal/utils"
)

type level struct {
	store Store
	ttl   time.Duration
}

// Cache is the tiered cache. A single mutex serializes tier walks, promotions and
// counter updates, so hits and misses always add up to the number of lookups.
type Cache struct {
	mu      sync.Mutex
	levels  [models.TierCount]level
	metrics *models.Metrics
	config  *config.Config
	clock   func() time.Time

	sf     *singleflight.Group
	tracer trace.Tracer
	logger *zap.Logger

	// Components
	bloomFilter *BloomFilter
	sweeper     *Sweeper
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a Cache whose tier stores are chosen by cfg.
func New(ctx context.Context, cfg *config.Config) (*Cache, error) {
	stores, err := initializeStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tier stores: %w", err)
	}
	return NewWithStores(ctx, cfg, stores)
}

// NewWithStores creates a Cache over caller-supplied stores, indexed L1..L3.
func NewWithStores(ctx context.Context, cfg *config.Config, stores [models.TierCount]Store) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ttls := [models.TierCount]time.Duration{cfg.TierTTLs.L1, cfg.TierTTLs.L2, cfg.TierTTLs.L3}

	c := &Cache{
		metrics: models.NewMetrics(),
		config:  cfg,
		clock:   cfg.Clock,
		sf:      &singleflight.Group{},
		tracer:  otel.Tracer("nexus/tiered"),
		logger:  cfg.Logger,
	}
	for i, s := range stores {
		if s == nil {
			return nil, fmt.Errorf("store for %s must not be nil", Tiers[i])
		}
		c.levels[i] = level{store: s, ttl: ttls[i]}
	}

	if cfg.BloomFilterSettings.Enabled {
		if cfg.LocalOnly() {
			c.bloomFilter = NewBloomFilter(cfg.BloomFilterSettings)
		} else {
			c.logger.Info("Bloom filter disabled because L3 is shared")
		}
	}

	c.sweeper = NewSweeper(c, cfg.SweepInterval)
	if cfg.SweepInterval > 0 {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.cancel = cancel
		c.done = make(chan struct{})
		go func() {
			defer close(c.done)
			c.sweeper.Run(runCtx)
		}()
	}

	return c, nil
}

func initializeStores(ctx context.Context, cfg *config.Config) ([models.TierCount]Store, error) {
	var stores [models.TierCount]Store
	for i, t := range Tiers {
		var (
			s   Store
			err error
		)
		switch {
		case t == L3 && cfg.RemoteTier.Enabled:
			s, err = remote.New(ctx, cfg, cfg.TierTTLs.L3)
		case cfg.BoundedTiers.Enabled:
			s, err = limited.New(cfg.BoundedTiers.MaxEntries, cfg.Logger.With(zap.Stringer("tier", t)))
		default:
			s = newMapStore()
		}
		if err != nil {
			for j := 0; j < i; j++ {
				if cerr := stores[j].Close(); cerr != nil {
					cfg.Logger.Warn("Failed to close tier store", zap.Stringer("tier", Tiers[j]), zap.Error(cerr))
				}
			}
			return stores, fmt.Errorf("failed to create %s store: %w", t, err)
		}
		stores[i] = s
	}
	return stores, nil
}

// Get returns the freshest copy of key. A hit below L1 copies the entry, with its
// original creation time, into the next faster tier.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	ctx, span := c.tracer.Start(ctx, "TieredCache.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	value, tier, found := c.lookupLocked(ctx, key)
	if found {
		span.SetAttributes(attribute.String("tier", tier.String()))
	}
	span.SetAttributes(attribute.Bool("hit", found))
	return value, found
}

func (c *Cache) lookupLocked(ctx context.Context, key string) (any, Tier, bool) {
	if c.bloomFilter != nil && !c.bloomFilter.Test(key) {
		c.metrics.Misses.Inc()
		return nil, 0, false
	}

	now := c.clock()
	for i, t := range Tiers {
		lvl := c.levels[i]
		entry, found, err := lvl.store.Load(ctx, key)
		if err != nil {
			c.logger.Warn("Failed to read tier", zap.Stringer("tier", t), zap.String("key", key), zap.Error(err))
			continue
		}
		if !found || !entry.FreshFor(lvl.ttl, now) {
			continue
		}

		c.metrics.Hits[i].Inc()
		if i > 0 {
			c.promoteLocked(ctx, Tiers[i-1], key, entry)
		}
		return entry.Value, t, true
	}

	c.metrics.Misses.Inc()
	return nil, 0, false
}

// promoteLocked copies entry into target without touching the tier it came from.
func (c *Cache) promoteLocked(ctx context.Context, target Tier, key string, entry *models.Entry) {
	if err := c.levels[target.index()].store.Save(ctx, key, entry.Clone()); err != nil {
		c.logger.Warn("Failed to promote entry", zap.Stringer("tier", target), zap.String("key", key), zap.Error(err))
		return
	}
	c.metrics.Promotions[target.index()].Inc()
}

// Set stores value in one tier, L1 unless another tier is given, and restarts that
// tier's freshness clock for key. Other tiers are left alone.
func (c *Cache) Set(ctx context.Context, key string, value any, tier ...Tier) error {
	t := utils.FirstOr(L1, tier...)
	if !t.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTier, t)
	}

	ctx, span := c.tracer.Start(ctx, "TieredCache.Set", trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("tier", t.String()),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.levels[t.index()].store.Save(ctx, key, models.NewEntry(value, c.clock())); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set %s entry: %w", t, err)
	}
	if c.bloomFilter != nil {
		c.bloomFilter.Add(key)
	}
	return nil
}

// Stats returns a snapshot of the counters and tier sizes. Sizes include entries that
// have expired but were never swept. A SharedStore is sized after the cache mutex is
// released, so a slow remote tier does not block other callers.
func (c *Cache) Stats(ctx context.Context) Stats {
	ctx, span := c.tracer.Start(ctx, "TieredCache.Stats")
	defer span.End()

	var (
		sizes  [models.TierCount]int64
		shared []int
	)

	c.mu.Lock()
	for i, lvl := range c.levels {
		if _, ok := lvl.store.(SharedStore); ok {
			shared = append(shared, i)
			continue
		}
		sizes[i] = c.sizeOf(ctx, i)
	}
	stats := newStats(c.metrics, sizes)
	c.mu.Unlock()

	for _, i := range shared {
		stats.Sizes.set(Tiers[i], c.sizeOf(ctx, i))
	}
	return stats
}

func (c *Cache) sizeOf(ctx context.Context, i int) int64 {
	n, err := c.levels[i].store.Len(ctx)
	if err != nil {
		c.logger.Warn("Failed to size tier", zap.Stringer("tier", Tiers[i]), zap.Error(err))
		return 0
	}
	return int64(n)
}

// ResetStats zeroes every hit, miss, promotion and sweep counter.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.Reset()
}

// Close stops the sweeper and releases every tier store.
func (c *Cache) Close() error {
	c.logger.Info("Closing TieredCache")

	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for i, lvl := range c.levels {
		if err := lvl.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s store: %w", Tiers[i], err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors occurred while closing TieredCache: %v", errs)
	}
	return nil
}
