package limited

import (
	"sync"

	"go.uber.org/zap"
)

// Tracker tracks the keys held by a Store. Ristretto hashes keys, so the store
// needs its own record to answer Len and Keys.
type Tracker struct {
	trackedKeys sync.Map
	logger      *zap.Logger
}

// NewTracker creates a new Tracker instance.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Add adds a key to the tracker.
func (t *Tracker) Add(key string) {
	t.trackedKeys.Store(key, struct{}{})
}

// Remove removes a key from the tracker.
func (t *Tracker) Remove(key string) {
	t.trackedKeys.Delete(key)
}

// Range iterates over all tracked keys.
func (t *Tracker) Range(f func(key string) bool) {
	t.trackedKeys.Range(func(k, _ any) bool {
		if strKey, ok := k.(string); ok {
			return f(strKey)
		}
		t.logger.Warn("Invalid key type in Tracker", zap.Any("key", k))
		return true
	})
}

// Len counts tracked keys.
func (t *Tracker) Len() int {
	n := 0
	t.trackedKeys.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Clear forgets every key.
func (t *Tracker) Clear() {
	t.trackedKeys.Range(func(k, _ any) bool {
		t.trackedKeys.Delete(k)
		return true
	})
}
