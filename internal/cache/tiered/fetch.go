package tiered

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Loader produces the value for key when no tier holds a fresh copy.
type Loader func(ctx context.Context, key string) (any, error)

const warmupConcurrency = 8

// Fetch is a read-through Get. On a miss the loader runs at most once per key across
// concurrent callers and its result is stored in tier. Loader errors are returned
// unchanged and nothing is stored.
func (c *Cache) Fetch(ctx context.Context, key string, tier Tier, loader Loader) (any, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	if loader == nil {
		return nil, ErrNilLoader
	}

	ctx, span := c.tracer.Start(ctx, "TieredCache.Fetch", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, shared := c.sf.Do(key, func() (any, error) {
		val, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, val, tier); err != nil {
			c.logger.Warn("Failed to store loaded value", zap.String("key", key), zap.Error(err))
		}
		return val, nil
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v, nil
}

// Warmup preloads keys into tier through Fetch. Keys already fresh somewhere are left as is.
func (c *Cache) Warmup(ctx context.Context, tier Tier, loader Loader, keys ...string) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	if loader == nil {
		return ErrNilLoader
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := c.Fetch(gctx, key, tier, loader); err != nil {
				c.logger.Warn("Failed to warm up key", zap.String("key", key), zap.Error(err))
				return fmt.Errorf("warm up %q: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}
