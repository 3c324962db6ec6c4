package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/nexus/pkg/serialization"
)

// Config 用於 TieredCache 的配置
type Config struct {
	TierTTLs      TierTTLConfig
	SweepInterval time.Duration
	Clock         func() time.Time

	BoundedTiers        BoundedTierConfig
	RemoteTier          RemoteTierConfig
	BloomFilterSettings BloomFilterConfig
	ResilienceConfig    ResilienceConfig
	Serialization       SerializationConfig
	Logger              *zap.Logger
}

// TierTTLConfig 每一層的存活時間，必須 L1 < L2 < L3
type TierTTLConfig struct {
	L1 time.Duration
	L2 time.Duration
	L3 time.Duration
}

// BoundedTierConfig 有界本地層 (ristretto)
type BoundedTierConfig struct {
	Enabled    bool
	MaxEntries uint64
}

// RemoteTierConfig 使用 Redis 作為 L3
type RemoteTierConfig struct {
	Enabled     bool
	Redis       *redis.Options
	KeyPrefix   string
	ExpiryGrace time.Duration
}

// BloomFilterConfig 用於布隆過濾器的配置
type BloomFilterConfig struct {
	Enabled           bool
	ExpectedItems     uint
	FalsePositiveRate float64
}

// ResilienceConfig 用於設置重試和熔斷器
type ResilienceConfig struct {
	CircuitBreaker      gobreaker.Settings
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// SerializationConfig 序列化相關配置
type SerializationConfig struct {
	Type    string
	Encoder func(io.Writer) serialization.Encoder
	Decoder func(io.Reader) serialization.Decoder
}

// Option 函數類型
type Option func(*Config) error

var (
	ErrInvalidTierTTL      = errors.New("tier TTLs must be positive and strictly increasing from L1 to L3")
	ErrInvalidBoundedSize  = errors.New("bounded tiers need max entries greater than 0")
	ErrMissingRedisOptions = errors.New("remote tier enabled without redis options")
)

// NewConfig 創建一個默認的 Config，允許覆蓋特定參數
func NewConfig(options ...Option) (*Config, error) {
	cfg := &Config{
		TierTTLs: TierTTLConfig{
			L1: 60 * time.Second,
			L2: 300 * time.Second,
			L3: 3600 * time.Second,
		},
		Clock: time.Now,
		BoundedTiers: BoundedTierConfig{
			MaxEntries: 100_000,
		},
		RemoteTier: RemoteTierConfig{
			KeyPrefix:   "nexus:l3:",
			ExpiryGrace: time.Minute,
		},
		BloomFilterSettings: BloomFilterConfig{
			Enabled:           true,
			ExpectedItems:     10_000,
			FalsePositiveRate: 0.01,
		},
		ResilienceConfig: ResilienceConfig{
			CircuitBreaker: gobreaker.Settings{
				Name:        "RemoteTierCircuitBreaker",
				MaxRequests: 3,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
			},
			MaxRetries:          3,
			InitialInterval:     100 * time.Millisecond,
			MaxInterval:         time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.1,
		},
		Serialization: SerializationConfig{
			Type:    serialization.JSONType,
			Encoder: serialization.JsonEncoder,
			Decoder: serialization.JsonDecoder,
		},
		Logger: zap.NewNop(),
	}

	// 應用所有選項
	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	// 最終檢查
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every cache relies on.
func (c *Config) Validate() error {
	t := c.TierTTLs
	if t.L1 <= 0 || t.L1 >= t.L2 || t.L2 >= t.L3 {
		return fmt.Errorf("%w: l1=%s l2=%s l3=%s", ErrInvalidTierTTL, t.L1, t.L2, t.L3)
	}
	if c.BoundedTiers.Enabled && c.BoundedTiers.MaxEntries == 0 {
		return ErrInvalidBoundedSize
	}
	if c.RemoteTier.Enabled && c.RemoteTier.Redis == nil {
		return ErrMissingRedisOptions
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval must not be negative")
	}
	return nil
}

// LocalOnly reports whether every tier lives in process memory.
func (c *Config) LocalOnly() bool {
	return !c.RemoteTier.Enabled
}

// WithLogger 設置自定義 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithTierTTLs 設置三層的存活時間
func WithTierTTLs(l1, l2, l3 time.Duration) Option {
	return func(c *Config) error {
		c.TierTTLs = TierTTLConfig{L1: l1, L2: l2, L3: l3}
		return nil
	}
}

// WithClock replaces the time source, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		c.Clock = clock
		return nil
	}
}

// WithSweepInterval 啟用背景清理過期項目
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) error {
		c.SweepInterval = interval
		return nil
	}
}

// WithBoundedTiers 以 ristretto 限制每層大小
func WithBoundedTiers(maxEntries uint64) Option {
	return func(c *Config) error {
		if maxEntries == 0 {
			return ErrInvalidBoundedSize
		}
		c.BoundedTiers = BoundedTierConfig{Enabled: true, MaxEntries: maxEntries}
		return nil
	}
}

// WithRedis 將 L3 放到 Redis
func WithRedis(opts *redis.Options) Option {
	return func(c *Config) error {
		if opts == nil {
			return ErrMissingRedisOptions
		}
		c.RemoteTier.Enabled = true
		c.RemoteTier.Redis = opts
		return nil
	}
}

// WithBloomFilter 調整或關閉布隆過濾器
func WithBloomFilter(enabled bool, expectedItems uint, falsePositiveRate float64) Option {
	return func(c *Config) error {
		if enabled && (expectedItems == 0 || falsePositiveRate <= 0 || falsePositiveRate >= 1) {
			return fmt.Errorf("invalid bloom filter settings: items=%d rate=%f", expectedItems, falsePositiveRate)
		}
		c.BloomFilterSettings = BloomFilterConfig{
			Enabled:           enabled,
			ExpectedItems:     expectedItems,
			FalsePositiveRate: falsePositiveRate,
		}
		return nil
	}
}

// WithGobTypes 註冊要以 gob 存入遠端層的具體型別
func WithGobTypes(values ...any) Option {
	return func(c *Config) error {
		if err := serialization.RegisterGobTypes(values...); err != nil {
			return fmt.Errorf("failed to register gob types: %w", err)
		}
		return nil
	}
}

// WithSerialization 設置序列化方式
func WithSerialization(serializer string) Option {
	return func(c *Config) error {
		switch serializer {
		case serialization.JSONType:
			c.Serialization.Encoder = serialization.JsonEncoder
			c.Serialization.Decoder = serialization.JsonDecoder
		case serialization.GobType:
			c.Serialization.Encoder = serialization.GobEncoder
			c.Serialization.Decoder = serialization.GobDecoder
		default:
			return fmt.Errorf("unsupported serialization type: %s", serializer)
		}
		c.Serialization.Type = serializer
		return nil
	}
}
