// Package cache keeps per-owner task lists in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// kvStore is the subset of the gofiber storage API the cache needs.
// *redis.Storage satisfies it.
type kvStore interface {
	GetWithContext(ctx context.Context, key string) ([]byte, error)
	SetWithContext(ctx context.Context, key string, val []byte, exp time.Duration) error
	DeleteWithContext(ctx context.Context, key string) error
	Close() error
}

// CacheService stores JSON values under a key prefix.
type CacheService interface {
	// Get unmarshals the cached value into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value with the default TTL.
	Set(ctx context.Context, key string, value any) error
	// SetWithTTL stores value with a custom TTL.
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
	// Close closes the underlying storage connection.
	Close() error
}

type cacheService struct {
	storage kvStore
	prefix  string
	ttl     time.Duration
}

// NewCacheService wraps storage with JSON encoding and a key prefix.
func NewCacheService(s kvStore, prefix string, ttl time.Duration) CacheService {
	return &cacheService{
		storage: s,
		prefix:  prefix,
		ttl:     ttl,
	}
}

func (c *cacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.storage.GetWithContext(ctx, c.prefix+key)
	if err != nil {
		return false, fmt.Errorf("cache get error: %w", err)
	}

	// nil or empty means miss
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	return true, nil
}

func (c *cacheService) Set(ctx context.Context, key string, value any) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *cacheService) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if err := c.storage.SetWithContext(ctx, c.prefix+key, data, ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *cacheService) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.storage.DeleteWithContext(ctx, c.prefix+key); err != nil {
			return fmt.Errorf("cache delete error: %w", err)
		}
	}
	return nil
}

func (c *cacheService) Close() error {
	return c.storage.Close()
}
