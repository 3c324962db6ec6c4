// Package limited provides a size-bounded tier store on top of Ristretto.
package limited

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"goflare.io/nexus/internal/models"
)

// ErrSetDropped is returned when Ristretto drops a write under contention.
var ErrSetDropped = errors.New("bounded store dropped the write")

type record struct {
	key   string
	entry *models.Entry
}

// Store keeps at most maxEntries entries. Admission and eviction follow Ristretto's
// TinyLFU policy; time-based expiry stays with the cache.
type Store struct {
	cache   *ristretto.Cache
	tracker *Tracker
	logger  *zap.Logger
}

// New creates a new Store instance.
func New(maxEntries uint64, logger *zap.Logger) (*Store, error) {
	if maxEntries == 0 {
		return nil, errors.New("max entries must be greater than 0")
	}

	s := &Store{
		tracker: NewTracker(logger),
		logger:  logger,
	}

	numCounters := int64(math.Min(float64(10*maxEntries), float64(math.MaxInt64)))
	maxCost := int64(math.Min(float64(maxEntries), float64(math.MaxInt64)))

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            s.forget,
		OnReject:           s.forget,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Ristretto cache: %w", err)
	}
	s.cache = c

	return s, nil
}

func (s *Store) forget(item *ristretto.Item) {
	if rec, ok := item.Value.(*record); ok {
		s.tracker.Remove(rec.key)
	}
}

// Load retrieves a cache entry.
func (s *Store) Load(ctx context.Context, key string) (*models.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	value, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}

	rec, ok := value.(*record)
	if !ok {
		s.logger.Error("Invalid cache entry type", zap.String("key", key))
		return nil, false, nil
	}
	return rec.entry, true, nil
}

// Save stores entry and waits until it is visible to Load.
func (s *Store) Save(ctx context.Context, key string, entry *models.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.tracker.Add(key)
	if !s.cache.Set(key, &record{key: key, entry: entry}, 1) {
		s.tracker.Remove(key)
		s.logger.Warn("Ristretto Set dropped", zap.String("key", key))
		return ErrSetDropped
	}
	s.cache.Wait()
	return nil
}

// Delete removes a cache entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Del(key)
	s.tracker.Remove(key)
	return nil
}

// Len returns the number of tracked keys.
func (s *Store) Len(context.Context) (int, error) {
	return s.tracker.Len(), nil
}

// Keys returns all keys currently held.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	s.tracker.Range(func(key string) bool {
		keys = append(keys, key)
		return ctx.Err() == nil
	})
	return keys, ctx.Err()
}

// Close closes the store.
func (s *Store) Close() error {
	s.cache.Close()
	s.tracker.Clear()
	return nil
}
