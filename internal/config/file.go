package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// File mirrors the YAML configuration read by cmd/nexus.
type File struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SeedDemoData    bool          `yaml:"seed_demo_data"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CacheConfig struct {
	L1            time.Duration `yaml:"l1_ttl"`
	L2            time.Duration `yaml:"l2_ttl"`
	L3            time.Duration `yaml:"l3_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxEntries    uint64        `yaml:"max_entries"`
	Serialization string        `yaml:"serialization"`
	Bloom         *struct {
		Enabled           bool    `yaml:"enabled"`
		ExpectedItems     uint    `yaml:"expected_items"`
		FalsePositiveRate float64 `yaml:"false_positive_rate"`
	} `yaml:"bloom"`
	Redis *struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// DefaultFile is used when no configuration file is given.
func DefaultFile() *File {
	return &File{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			SeedDemoData:    true,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// LoadFile loads the configurations from the specified YAML file on top of DefaultFile.
func LoadFile(path string) (*File, error) {
	f := DefaultFile()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(f); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return f, nil
}

// CacheOptions converts the cache section into cache options. Zero values keep the defaults.
func (f *File) CacheOptions() []Option {
	c := f.Cache
	var opts []Option

	if c.L1 > 0 || c.L2 > 0 || c.L3 > 0 {
		opts = append(opts, func(cfg *Config) error {
			if c.L1 > 0 {
				cfg.TierTTLs.L1 = c.L1
			}
			if c.L2 > 0 {
				cfg.TierTTLs.L2 = c.L2
			}
			if c.L3 > 0 {
				cfg.TierTTLs.L3 = c.L3
			}
			return nil
		})
	}
	if c.SweepInterval > 0 {
		opts = append(opts, WithSweepInterval(c.SweepInterval))
	}
	if c.MaxEntries > 0 {
		opts = append(opts, WithBoundedTiers(c.MaxEntries))
	}
	if c.Serialization != "" {
		opts = append(opts, WithSerialization(c.Serialization))
	}
	if c.Bloom != nil {
		opts = append(opts, WithBloomFilter(c.Bloom.Enabled, c.Bloom.ExpectedItems, c.Bloom.FalsePositiveRate))
	}
	if c.Redis != nil && c.Redis.Addr != "" {
		opts = append(opts, WithRedis(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		}))
	}
	return opts
}
