package tiered

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"goflare.io/nexus/internal/cache/remote"
	"goflare.io/nexus/internal/config"
	"goflare.io/nexus/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingStore wraps mapStore and counts Load calls.
type countingStore struct {
	*mapStore
	loads atomic.Int64
	fail  error
}

func (s *countingStore) Load(ctx context.Context, key string) (*models.Entry, bool, error) {
	s.loads.Inc()
	if s.fail != nil {
		return nil, false, s.fail
	}
	return s.mapStore.Load(ctx, key)
}

type TieredCacheTestSuite struct {
	suite.Suite
	clock *fakeClock
	cache *Cache
	ctx   context.Context
}

func TestTieredCacheSuite(t *testing.T) {
	suite.Run(t, new(TieredCacheTestSuite))
}

func (suite *TieredCacheTestSuite) SetupTest() {
	suite.clock = newFakeClock()
	suite.ctx = context.Background()

	cfg, err := config.NewConfig(config.WithClock(suite.clock.Now))
	suite.Require().NoError(err)

	c, err := New(suite.ctx, cfg)
	suite.Require().NoError(err)
	suite.cache = c
}

func (suite *TieredCacheTestSuite) TearDownTest() {
	suite.NoError(suite.cache.Close())
}

func (suite *TieredCacheTestSuite) stats() Stats {
	return suite.cache.Stats(suite.ctx)
}

func (suite *TieredCacheTestSuite) TestMissOnEmptyCache() {
	v, ok := suite.cache.Get(suite.ctx, "product:1")
	suite.False(ok)
	suite.Nil(v)
	suite.Equal(int64(1), suite.stats().Misses)
}

func (suite *TieredCacheTestSuite) TestL1TakesPrecedence() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "one", L1))
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "two", L2))
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "three", L3))

	v, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	suite.Equal("one", v)

	s := suite.stats()
	suite.Equal(TierCounts{L1: 1}, s.Hits)
	suite.Zero(s.Misses)
	suite.Equal(TierCounts{}, s.Promotions)
}

func (suite *TieredCacheTestSuite) TestPromotionFromL3() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v", L3))

	v, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	suite.Equal("v", v)
	s := suite.stats()
	suite.Equal(TierCounts{L3: 1}, s.Hits)
	suite.Equal(TierCounts{L2: 1}, s.Promotions)
	suite.Equal(TierCounts{L2: 1, L3: 1}, s.Sizes)

	_, ok = suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	s = suite.stats()
	suite.Equal(TierCounts{L2: 1, L3: 1}, s.Hits)

	_, ok = suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	s = suite.stats()
	suite.Equal(TierCounts{L1: 1, L2: 1, L3: 1}, s.Hits)
	suite.Equal(TierCounts{L1: 1, L2: 1, L3: 1}, s.Sizes)
}

func (suite *TieredCacheTestSuite) TestPromotionKeepsCreationTime() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v", L2))
	suite.clock.Advance(61 * time.Second)

	_, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	_, ok = suite.cache.Get(suite.ctx, "k")
	suite.True(ok)

	// The copy promoted into L1 is already older than the L1 TTL.
	s := suite.stats()
	suite.Equal(TierCounts{L2: 2}, s.Hits)
	suite.Equal(int64(2), s.Promotions.L1)
}

func (suite *TieredCacheTestSuite) TestL1Expiry() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v"))
	suite.clock.Advance(60*time.Second + time.Millisecond)

	_, ok := suite.cache.Get(suite.ctx, "k")
	suite.False(ok)
	suite.Equal(int64(1), suite.stats().Misses)
}

func (suite *TieredCacheTestSuite) TestAgeEqualToTTLIsStale() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v"))
	suite.clock.Advance(59 * time.Second)
	_, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)

	suite.clock.Advance(time.Second)
	_, ok = suite.cache.Get(suite.ctx, "k")
	suite.False(ok)
}

func (suite *TieredCacheTestSuite) TestExpiredL1FallsBackToL2() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "fast", L1))
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "slow", L2))
	suite.clock.Advance(2 * time.Minute)

	v, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	suite.Equal("slow", v)
	suite.Equal(TierCounts{L2: 1}, suite.stats().Hits)
}

func (suite *TieredCacheTestSuite) TestSetWritesOnlyOneTier() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v", L2))
	suite.Equal(TierCounts{L2: 1}, suite.stats().Sizes)
}

func (suite *TieredCacheTestSuite) TestOverwriteRestartsClock() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "old"))
	suite.clock.Advance(50 * time.Second)
	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "new"))
	suite.clock.Advance(50 * time.Second)

	v, ok := suite.cache.Get(suite.ctx, "k")
	suite.True(ok)
	suite.Equal("new", v)
}

func (suite *TieredCacheTestSuite) TestSetUnknownTier() {
	for _, t := range []Tier{0, 4, -1} {
		err := suite.cache.Set(suite.ctx, "k", "v", t)
		suite.ErrorIs(err, ErrUnknownTier, t.String())
	}
	suite.Equal(TierCounts{}, suite.stats().Sizes)
}

func (suite *TieredCacheTestSuite) TestHitRate() {
	suite.Equal("0.00%", suite.stats().HitRate)

	suite.Require().NoError(suite.cache.Set(suite.ctx, "k", "v"))
	for i := 0; i < 3; i++ {
		_, ok := suite.cache.Get(suite.ctx, "k")
		suite.True(ok)
	}
	_, ok := suite.cache.Get(suite.ctx, "missing")
	suite.False(ok)

	suite.Equal("75.00%", suite.stats().HitRate)
}

func (suite *TieredCacheTestSuite) TestStatsAddUpToLookups() {
	rng := rand.New(rand.NewPCG(1, 2))
	tiers := []Tier{L1, L2, L3}
	const lookups = 500

	for i := 0; i < lookups; i++ {
		key := fmt.Sprintf("k%d", rng.IntN(40))
		switch rng.IntN(4) {
		case 0:
			suite.Require().NoError(suite.cache.Set(suite.ctx, key, i, tiers[rng.IntN(3)]))
		case 1:
			suite.clock.Advance(time.Duration(rng.IntN(90)) * time.Second)
		}
		suite.cache.Get(suite.ctx, key)
	}

	s := suite.stats()
	suite.Equal(int64(lookups), s.Hits.L1+s.Hits.L2+s.Hits.L3+s.Misses)
	suite.Equal(int64(lookups), s.Lookups())
}

func (suite *TieredCacheTestSuite) TestStaleEntriesAccumulateUntilSwept() {
	for i := 0; i < 100; i++ {
		suite.Require().NoError(suite.cache.Set(suite.ctx, fmt.Sprintf("order:%d", i), i, L3))
	}
	suite.clock.Advance(time.Hour + time.Second)

	for i := 0; i < 100; i++ {
		_, ok := suite.cache.Get(suite.ctx, fmt.Sprintf("order:%d", i))
		suite.False(ok)
	}

	s := suite.stats()
	suite.Equal(int64(100), s.Misses)
	suite.Equal(int64(100), s.Sizes.L3, "lazy expiry keeps stale entries")

	suite.Equal(100, suite.cache.Sweep(suite.ctx))
	s = suite.stats()
	suite.Equal(TierCounts{}, s.Sizes)
	suite.Equal(int64(100), s.Swept)
}

func (suite *TieredCacheTestSuite) TestSweepKeepsFreshEntries() {
	suite.Require().NoError(suite.cache.Set(suite.ctx, "old", 1, L1))
	suite.Require().NoError(suite.cache.Set(suite.ctx, "keep", 2, L2))
	suite.clock.Advance(2 * time.Minute)

	suite.Equal(1, suite.cache.Sweep(suite.ctx))

	v, ok := suite.cache.Get(suite.ctx, "keep")
	suite.True(ok)
	suite.Equal(2, v)
}

func (suite *TieredCacheTestSuite) TestResetStats() {
	suite.cache.Get(suite.ctx, "nope")
	suite.cache.ResetStats()
	suite.Zero(suite.stats().Lookups())
}

func newCacheWithStores(t *testing.T, opts []config.Option, stores [models.TierCount]Store) *Cache {
	cfg, err := config.NewConfig(opts...)
	require.NoError(t, err)
	c, err := NewWithStores(context.Background(), cfg, stores)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func countingStores() [models.TierCount]*countingStore {
	return [models.TierCount]*countingStore{
		{mapStore: newMapStore()},
		{mapStore: newMapStore()},
		{mapStore: newMapStore()},
	}
}

func TestBloomFilterSkipsUnknownKeys(t *testing.T) {
	cs := countingStores()
	c := newCacheWithStores(t, nil, [models.TierCount]Store{cs[0], cs[1], cs[2]})
	ctx := context.Background()

	_, ok := c.Get(ctx, "never-set")
	assert.False(t, ok)
	assert.Zero(t, cs[0].loads.Load()+cs[1].loads.Load()+cs[2].loads.Load())
	assert.Equal(t, int64(1), c.Stats(ctx).Misses)

	require.NoError(t, c.Set(ctx, "known", 1, L3))
	_, ok = c.Get(ctx, "known")
	assert.True(t, ok)
	assert.Equal(t, int64(1), cs[2].loads.Load())
}

func TestWithoutBloomFilterEveryTierIsRead(t *testing.T) {
	cs := countingStores()
	c := newCacheWithStores(t,
		[]config.Option{config.WithBloomFilter(false, 0, 0)},
		[models.TierCount]Store{cs[0], cs[1], cs[2]})

	_, ok := c.Get(context.Background(), "never-set")
	assert.False(t, ok)
	for i := range cs {
		assert.Equal(t, int64(1), cs[i].loads.Load(), Tiers[i].String())
	}
}

func TestFailingTierIsTreatedAsAbsent(t *testing.T) {
	cs := countingStores()
	cs[0].fail = errors.New("disk on fire")
	c := newCacheWithStores(t, nil, [models.TierCount]Store{cs[0], cs[1], cs[2]})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", L2))
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, TierCounts{L2: 1}, c.Stats(ctx).Hits)
}

func TestNewWithStoresRejectsNilStore(t *testing.T) {
	cfg, err := config.NewConfig()
	require.NoError(t, err)
	_, err = NewWithStores(context.Background(), cfg, [models.TierCount]Store{newMapStore(), nil, newMapStore()})
	assert.Error(t, err)
}

func TestBoundedTiers(t *testing.T) {
	cfg, err := config.NewConfig(config.WithBoundedTiers(1000))
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", L3))
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	v, ok = c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, TierCounts{L2: 1, L3: 1}, c.Stats(ctx).Hits)
}

// keysFailingStore is a mapStore whose Keys always fails.
type keysFailingStore struct {
	*mapStore
}

func (s *keysFailingStore) Keys(context.Context) ([]string, error) {
	return nil, errors.New("listing unavailable")
}

func TestCancelledSweepKeepsBloomFilter(t *testing.T) {
	cfg, err := config.NewConfig(config.WithBoundedTiers(1000))
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Zero(t, c.Sweep(cancelled))

	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Zero(t, c.Stats(ctx).Misses)
}

func TestSweepWithUnlistableTierKeepsBloomFilter(t *testing.T) {
	clock := newFakeClock()
	stores := [models.TierCount]Store{&keysFailingStore{newMapStore()}, newMapStore(), newMapStore()}
	c := newCacheWithStores(t, []config.Option{config.WithClock(clock.Now)}, stores)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", 1, L2))
	clock.Advance(10 * time.Minute)
	require.NoError(t, c.Set(ctx, "fresh", 2))

	assert.Equal(t, 1, c.Sweep(ctx))

	v, ok := c.Get(ctx, "fresh")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, TierCounts{L1: 1}, c.Stats(ctx).Hits)
}

var _ SharedStore = (*remote.Store)(nil)

// slowSharedStore is a SharedStore whose Len blocks until released.
type slowSharedStore struct {
	*mapStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowSharedStore) ConcurrentSafe() {}

func (s *slowSharedStore) Len(ctx context.Context) (int, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.mapStore.Len(ctx)
}

func TestStatsSizesSharedTierOutsideLock(t *testing.T) {
	l3 := &slowSharedStore{
		mapStore: newMapStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := newCacheWithStores(t, nil, [models.TierCount]Store{newMapStore(), newMapStore(), l3})
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "remote", "r", L3))

	statsDone := make(chan Stats, 1)
	go func() { statsDone <- c.Stats(ctx) }()
	<-l3.entered

	getDone := make(chan bool, 1)
	go func() {
		if err := c.Set(ctx, "k", "v"); err != nil {
			getDone <- false
			return
		}
		_, ok := c.Get(ctx, "k")
		getDone <- ok
	}()

	select {
	case ok := <-getDone:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Error("Set and Get blocked while Stats sized the shared tier")
	}

	close(l3.release)
	s := <-statsDone
	assert.Equal(t, TierCounts{L3: 1}, s.Sizes)
}

func TestRedisBackedL3(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.NewConfig(config.WithRedis(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "user:1", "alice", L3))
	assert.True(t, mr.Exists("nexus:l3:user:1"))

	v, ok := c.Get(ctx, "user:1")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	s := c.Stats(ctx)
	assert.Equal(t, TierCounts{L3: 1}, s.Hits)
	assert.Equal(t, TierCounts{L2: 1, L3: 1}, s.Sizes)
}

func TestSweeperRunsInBackground(t *testing.T) {
	clock := newFakeClock()
	cfg, err := config.NewConfig(config.WithClock(clock.Now), config.WithSweepInterval(5*time.Millisecond))
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v"))
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool {
		return c.Stats(ctx).Swept == 1
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, c.Close())
}

func TestConcurrentUse(t *testing.T) {
	cfg, err := config.NewConfig()
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	const workers, perWorker = 8, 200
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("k%d", i%17)
				if i%3 == 0 {
					_ = c.Set(ctx, key, w, Tiers[(i/3)%3])
				}
				c.Get(ctx, key)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), c.Stats(ctx).Lookups())
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{"L1": L1, "l2": L2, " 3 ": L3} {
		got, err := ParseTier(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTier("L4")
	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.Equal(t, "Tier(9)", Tier(9).String())
}
