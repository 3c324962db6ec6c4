package tiered

import (
	"context"

	"goflare.io/nexus/internal/models"
)

// Store holds the entries of a single tier. Implementations are not required to be
// safe for concurrent use; the cache serializes every call.
type Store interface {
	Load(ctx context.Context, key string) (*models.Entry, bool, error)
	Save(ctx context.Context, key string, entry *models.Entry) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// SharedStore is a Store that is safe for concurrent use by itself, such as one backed
// by a remote server. The cache calls its Len without holding the cache mutex.
type SharedStore interface {
	Store
	ConcurrentSafe()
}

// mapStore is the default tier store. Stale entries stay until overwritten or swept.
type mapStore struct {
	entries map[string]*models.Entry
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]*models.Entry)}
}

func (s *mapStore) Load(_ context.Context, key string) (*models.Entry, bool, error) {
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *mapStore) Save(_ context.Context, key string, entry *models.Entry) error {
	s.entries[key] = entry
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	delete(s.entries, key)
	return nil
}

func (s *mapStore) Len(context.Context) (int, error) {
	return len(s.entries), nil
}

func (s *mapStore) Keys(context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *mapStore) Close() error {
	clear(s.entries)
	return nil
}
