// Package redis provides the Redis-backed result cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

const cacheKeyPrefix = "cache:"

// ResultCache implements store.ResultCache on top of a Redis instance.
// Entries are JSON blobs keyed by cache:<fingerprint> with a Redis TTL
// matching the entry expiry, so Redis evicts what Lookup would reject.
type ResultCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewResultCache creates a Redis-backed result cache.
func NewResultCache(client *redis.Client, logger *slog.Logger) *ResultCache {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ResultCache{
		client: client,
		logger: logger.With(slog.String("component", "result_cache")),
	}
}

// Ensure ResultCache implements store.ResultCache interface
var _ store.ResultCache = (*ResultCache)(nil)

// Lookup implements store.ResultCache.Lookup.
// Misses and expired entries both return (nil, nil).
func (c *ResultCache) Lookup(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is treated as a miss; the pipeline will refetch
		// and overwrite it.
		c.logger.Warn("discarding unreadable cache entry",
			slog.String("fingerprint", fingerprint),
			slog.String("error", err.Error()))
		return nil, nil
	}

	if !entry.Live(time.Now().UTC()) {
		return nil, nil
	}

	return &entry, nil
}

// Store implements store.ResultCache.Store.
func (c *ResultCache) Store(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, cacheKeyPrefix+entry.Fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}

	c.logger.Debug("cache entry stored",
		slog.String("fingerprint", entry.Fingerprint),
		slog.String("platform", entry.Platform),
		slog.Duration("ttl", ttl))
	return nil
}
