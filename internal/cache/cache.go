// Package cache is an optional key/value layer in front of slower reads.
// Callers treat every failure as a miss and keep going.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a string key/value store with per-key expiry.
type Store interface {
	// Get returns the value and true, or "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key prefixes shared by the components that use the cache.
const (
	PrefixBalance    = "balance:"
	PrefixRules      = "rules:"
	PrefixExtraction = "expense:"
)

// HashKey returns the hex SHA-256 of the trimmed, lower-cased input, so that
// messages differing only in case or surrounding space share a key.
func HashKey(input string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(sum[:])
}

// Nop is a Store that never holds anything. It stands in when no cache is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error { return nil }

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// DefaultTimeout bounds every Redis round trip.
const DefaultTimeout = 2 * time.Second

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RedisStore{client: client, timeout: timeout}
}

// Connect parses a redis:// URL, overrides the password when one is given,
// and verifies the connection with PING.
func Connect(ctx context.Context, url, password string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Connect: parsing url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	store := NewRedisStore(client, DefaultTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}
	return store, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("RedisStore.Get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("RedisStore.Set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("RedisStore.Delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
