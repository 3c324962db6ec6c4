package models

import "go.uber.org/atomic"

// TierCount is the number of cache tiers.
const TierCount = 3

// Metrics 定義指標統計，索引 0..2 對應 L1..L3
type Metrics struct {
	Hits       [TierCount]atomic.Int64
	Promotions [TierCount]atomic.Int64
	Misses     atomic.Int64
	Swept      atomic.Int64
}

// NewMetrics 創建新的 Metrics 實例
func NewMetrics() *Metrics {
	return &Metrics{}
}

// TotalHits sums hits across every tier.
func (m *Metrics) TotalHits() int64 {
	var total int64
	for i := range m.Hits {
		total += m.Hits[i].Load()
	}
	return total
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	for i := 0; i < TierCount; i++ {
		m.Hits[i].Store(0)
		m.Promotions[i].Store(0)
	}
	m.Misses.Store(0)
	m.Swept.Store(0)
}
