package tiered

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes entries that are stale for their tier. The cache never evicts on its
// own; running a Sweeper is the opt-in remedy for unbounded key spaces.
type Sweeper struct {
	cache    *Cache
	logger   *zap.Logger
	interval time.Duration
}

// NewSweeper creates a new Sweeper instance.
func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	return &Sweeper{
		cache:    cache,
		logger:   cache.logger,
		interval: interval,
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.cache.Sweep(ctx); n > 0 {
				s.logger.Debug("Swept stale entries", zap.Int("count", n))
			}
		case <-ctx.Done():
			s.logger.Info("Stopping sweeper due to context cancellation")
			return
		}
	}
}

// Sweep deletes every entry that is no longer fresh in its tier and returns how many
// were removed. The bloom filter is rebuilt from the surviving keys, but only after a
// pass that read every tier completely; otherwise it keeps every key it already had.
func (c *Cache) Sweep(ctx context.Context) int {
	ctx, span := c.tracer.Start(ctx, "TieredCache.Sweep")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	complete := true
	survivors := make(map[string]struct{})

	defer func() { c.metrics.Swept.Add(int64(removed)) }()

	for i, lvl := range c.levels {
		keys, err := lvl.store.Keys(ctx)
		if err != nil {
			c.logger.Warn("Failed to list tier keys", zap.Stringer("tier", Tiers[i]), zap.Error(err))
			complete = false
			continue
		}
		for _, key := range keys {
			if ctx.Err() != nil {
				return removed
			}
			entry, found, err := lvl.store.Load(ctx, key)
			if err != nil {
				c.logger.Warn("Failed to read entry during sweep", zap.Stringer("tier", Tiers[i]), zap.String("key", key), zap.Error(err))
				complete = false
				continue
			}
			if !found {
				continue
			}
			if entry.FreshFor(lvl.ttl, now) {
				survivors[key] = struct{}{}
				continue
			}
			if err := lvl.store.Delete(ctx, key); err != nil {
				c.logger.Warn("Failed to delete stale entry", zap.Stringer("tier", Tiers[i]), zap.String("key", key), zap.Error(err))
				survivors[key] = struct{}{}
				continue
			}
			removed++
		}
	}

	if c.bloomFilter != nil && complete && ctx.Err() == nil {
		keys := make([]string, 0, len(survivors))
		for k := range survivors {
			keys = append(keys, k)
		}
		c.bloomFilter.Rebuild(keys)
	}
	return removed
}
