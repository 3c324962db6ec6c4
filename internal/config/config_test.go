package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.TierTTLs.L1)
	assert.Equal(t, 300*time.Second, cfg.TierTTLs.L2)
	assert.Equal(t, 3600*time.Second, cfg.TierTTLs.L3)
	assert.Zero(t, cfg.SweepInterval)
	assert.False(t, cfg.BoundedTiers.Enabled)
	assert.True(t, cfg.LocalOnly())
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Clock)
}

func TestNewConfigRejectsInvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opt  Option
	}{
		{"L1NotPositive", WithTierTTLs(0, time.Minute, time.Hour)},
		{"L2NotAboveL1", WithTierTTLs(time.Minute, time.Minute, time.Hour)},
		{"L3NotAboveL2", WithTierTTLs(time.Second, time.Hour, time.Minute)},
		{"ZeroBoundedSize", WithBoundedTiers(0)},
		{"NilRedis", WithRedis(nil)},
		{"NilClock", WithClock(nil)},
		{"UnknownSerializer", WithSerialization("xml")},
		{"BadBloomRate", WithBloomFilter(true, 10, 1.5)},
		{"NegativeSweep", WithSweepInterval(-time.Second)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.opt)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestInvalidTierTTLIsWrapped(t *testing.T) {
	_, err := NewConfig(WithTierTTLs(time.Hour, time.Minute, time.Second))
	assert.ErrorIs(t, err, ErrInvalidTierTTL)
}

func TestWithRedisSwitchesOffLocalOnly(t *testing.T) {
	cfg, err := NewConfig(WithRedis(&redis.Options{Addr: "localhost:6379"}))
	require.NoError(t, err)
	assert.False(t, cfg.LocalOnly())
	assert.Equal(t, "nexus:l3:", cfg.RemoteTier.KeyPrefix)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	content := `
server:
  addr: ":8080"
log:
  level: debug
cache:
  l1_ttl: 30s
  l3_ttl: 2h
  max_entries: 500
  serialization: gob
  bloom:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", f.Server.Addr)
	assert.Equal(t, 5*time.Second, f.Server.ShutdownTimeout)
	assert.Equal(t, "debug", f.Log.Level)
	assert.Equal(t, "console", f.Log.Format)

	cfg, err := NewConfig(f.CacheOptions()...)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.TierTTLs.L1)
	assert.Equal(t, 300*time.Second, cfg.TierTTLs.L2)
	assert.Equal(t, 2*time.Hour, cfg.TierTTLs.L3)
	assert.True(t, cfg.BoundedTiers.Enabled)
	assert.Equal(t, uint64(500), cfg.BoundedTiers.MaxEntries)
	assert.Equal(t, "gob", cfg.Serialization.Type)
	assert.False(t, cfg.BloomFilterSettings.Enabled)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
