package tiered

import (
	"fmt"

	"goflare.io/nexus/internal/models"
)

// TierCounts holds one number per tier.
type TierCounts struct {
	L1 int64 `json:"L1"`
	L2 int64 `json:"L2"`
	L3 int64 `json:"L3"`
}

// Total sums the three tiers.
func (tc TierCounts) Total() int64 {
	return tc.L1 + tc.L2 + tc.L3
}

// Of returns the count for t, or zero for an unknown tier.
func (tc TierCounts) Of(t Tier) int64 {
	switch t {
	case L1:
		return tc.L1
	case L2:
		return tc.L2
	case L3:
		return tc.L3
	}
	return 0
}

func (tc *TierCounts) set(t Tier, n int64) {
	switch t {
	case L1:
		tc.L1 = n
	case L2:
		tc.L2 = n
	case L3:
		tc.L3 = n
	}
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Hits       TierCounts `json:"hits"`
	Misses     int64      `json:"misses"`
	Promotions TierCounts `json:"promotions"`
	Sizes      TierCounts `json:"sizes"`
	Swept      int64      `json:"swept"`
	HitRate    string     `json:"hit_rate"`
}

// Lookups is the number of Get calls the counters account for.
func (s Stats) Lookups() int64 {
	return s.Hits.Total() + s.Misses
}

func newStats(m *models.Metrics, sizes [models.TierCount]int64) Stats {
	s := Stats{
		Hits:       TierCounts{L1: m.Hits[0].Load(), L2: m.Hits[1].Load(), L3: m.Hits[2].Load()},
		Misses:     m.Misses.Load(),
		Promotions: TierCounts{L1: m.Promotions[0].Load(), L2: m.Promotions[1].Load(), L3: m.Promotions[2].Load()},
		Sizes:      TierCounts{L1: sizes[0], L2: sizes[1], L3: sizes[2]},
		Swept:      m.Swept.Load(),
	}
	s.HitRate = formatHitRate(s.Hits.Total(), s.Misses)
	return s
}

func formatHitRate(hits, misses int64) string {
	total := hits + misses
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(hits)/float64(total)*100)
}
