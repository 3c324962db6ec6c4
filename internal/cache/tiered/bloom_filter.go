package tiered

import (
	"github.com/bits-and-blooms/bloom/v3"

	"goflare.io/nexus/internal/config"
)

// BloomFilter remembers every key ever set so lookups for unknown keys can skip the
// tier walk. It is only consulted under the cache mutex.
type BloomFilter struct {
	filter   *bloom.BloomFilter
	settings config.BloomFilterConfig
}

// NewBloomFilter creates a new BloomFilter instance.
func NewBloomFilter(settings config.BloomFilterConfig) *BloomFilter {
	return &BloomFilter{
		filter:   bloom.NewWithEstimates(settings.ExpectedItems, settings.FalsePositiveRate),
		settings: settings,
	}
}

// Add adds a key to the bloom filter.
func (bf *BloomFilter) Add(key string) {
	bf.filter.AddString(key)
}

// Test checks if a key might have been set. False means it never was.
func (bf *BloomFilter) Test(key string) bool {
	return bf.filter.TestString(key)
}

// Rebuild replaces the filter with one holding exactly keys.
func (bf *BloomFilter) Rebuild(keys []string) {
	expected := bf.settings.ExpectedItems
	if n := uint(len(keys)); n > expected {
		expected = n
	}
	bf.filter = bloom.NewWithEstimates(expected, bf.settings.FalsePositiveRate)
	for _, k := range keys {
		bf.filter.AddString(k)
	}
}
