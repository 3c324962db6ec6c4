// Package remote keeps a tier in Redis so several processes can share it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/nexus/internal/config"
	"goflare.io/nexus/internal/models"
	"goflare.io/nexus/internal/retrier"
	"goflare.io/nexus/pkg/serialization"
)

const scanBatch = 1000

// Store is a tier store backed by Redis. Every call goes through a circuit breaker
// wrapping a retrier; a missing key is not a failure.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	expiry  time.Duration
	encoder func(io.Writer) serialization.Encoder
	decoder func(io.Reader) serialization.Decoder

	breaker *gobreaker.CircuitBreaker
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// New connects to the Redis server in cfg and checks it answers.
func New(ctx context.Context, cfg *config.Config, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(cfg.RemoteTier.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, cfg, ttl)
}

// NewWithClient wraps an existing client. Keys expire in Redis ttl plus the configured
// grace after they are written.
func NewWithClient(client redis.UniversalClient, cfg *config.Config, ttl time.Duration) (*Store, error) {
	rc := cfg.ResilienceConfig
	r, err := retrier.NewRetrier(
		rc.MaxRetries,
		rc.InitialInterval,
		rc.MaxInterval,
		rc.Multiplier,
		rc.RandomizationFactor,
		retrier.ExponentialBackoff,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrier: %w", err)
	}

	return &Store{
		client:  client,
		prefix:  cfg.RemoteTier.KeyPrefix,
		expiry:  ttl + cfg.RemoteTier.ExpiryGrace,
		encoder: cfg.Serialization.Encoder,
		decoder: cfg.Serialization.Decoder,
		breaker: gobreaker.NewCircuitBreaker(rc.CircuitBreaker),
		retrier: r,
		logger:  cfg.Logger,
	}, nil
}

func (s *Store) executeWithResilience(ctx context.Context, f func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.retrier.Run(ctx, f)
	})
	return err
}

// Load retrieves an entry from Redis.
func (s *Store) Load(ctx context.Context, key string) (*models.Entry, bool, error) {
	var data []byte
	found := true
	if err := s.executeWithResilience(ctx, func() error {
		var err error
		data, err = s.client.Get(ctx, s.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		return err
	}); err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var entry models.Entry
	if err := serialization.Unmarshal(s.decoder, data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode entry %s: %w", key, err)
	}
	return &entry, true, nil
}

// Save writes an entry to Redis.
func (s *Store) Save(ctx context.Context, key string, entry *models.Entry) error {
	data, err := serialization.Marshal(s.encoder, entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}

	if err := s.executeWithResilience(ctx, func() error {
		return s.client.Set(ctx, s.prefix+key, data, s.expiry).Err()
	}); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a key from Redis.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.executeWithResilience(ctx, func() error {
		return s.client.Del(ctx, s.prefix+key).Err()
	}); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Len counts the keys under the store prefix.
func (s *Store) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	return len(keys), err
}

// Keys lists the keys under the store prefix, without the prefix.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.executeWithResilience(ctx, func() error {
		keys = keys[:0]
		var cursor uint64
		for {
			batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
			if err != nil {
				return err
			}
			for _, k := range batch {
				keys = append(keys, strings.TrimPrefix(k, s.prefix))
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	}); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ConcurrentSafe marks the store as usable without the cache mutex; the Redis client
// is safe for concurrent use.
func (s *Store) ConcurrentSafe() {}
