package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/roles"
)

// Cache stores permitted-role sets per operation name. Permission rows are
// read far more often than written, so the checker reads through the cache
// and the setup builder invalidates on every commit (write-through).
type Cache interface {
	Get(ctx context.Context, operation string) (roles.Set, bool, error)
	Set(ctx context.Context, operation string, set roles.Set) error
	Invalidate(ctx context.Context, operation string) error
}

// NoopCache disables caching. Every lookup goes to the store.
type NoopCache struct{}

// Get implements Cache.
func (NoopCache) Get(ctx context.Context, operation string) (roles.Set, bool, error) {
	return nil, false, nil
}

// Set implements Cache.
func (NoopCache) Set(ctx context.Context, operation string, set roles.Set) error { return nil }

// Invalidate implements Cache.
func (NoopCache) Invalidate(ctx context.Context, operation string) error { return nil }

// LRUCache is an in-process permitted-roles cache. Suitable for single-node
// deployments; multi-node deployments should prefer RedisCache so a commit
// on one node invalidates all of them.
type LRUCache struct {
	cache   *lru.Cache[string, roles.Set]
	metrics *observability.Metrics
}

// NewLRUCache creates an in-process cache holding up to size operations.
func NewLRUCache(size int, metrics *observability.Metrics) (*LRUCache, error) {
	cache, err := lru.New[string, roles.Set](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRUCache{cache: cache, metrics: metrics}, nil
}

// Get implements Cache.
func (c *LRUCache) Get(ctx context.Context, operation string) (roles.Set, bool, error) {
	set, ok := c.cache.Get(operation)
	if !ok {
		c.metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
		return nil, false, nil
	}
	c.metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
	return set.Clone(), true, nil
}

// Set implements Cache.
func (c *LRUCache) Set(ctx context.Context, operation string, set roles.Set) error {
	c.cache.Add(operation, set.Clone())
	return nil
}

// Invalidate implements Cache.
func (c *LRUCache) Invalidate(ctx context.Context, operation string) error {
	c.cache.Remove(operation)
	c.metrics.CacheInvalidationsTotal.WithLabelValues("lru").Inc()
	return nil
}

const redisKeyPrefix = "warden:permitted:"

// RedisCache is a shared permitted-roles cache. Entries carry a TTL as a
// backstop; the authoritative invalidation is the explicit one on commit.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, metrics: metrics}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, operation string) (roles.Set, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+operation).Result()
	if err == redis.Nil {
		c.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read permitted-roles cache: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, false, fmt.Errorf("failed to decode permitted-roles cache entry: %w", err)
	}

	set := roles.Set{}
	for _, name := range names {
		role, err := roles.Parse(name)
		if err != nil {
			return nil, false, err
		}
		set.Add(role)
	}

	c.metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return set, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, operation string, set roles.Set) error {
	names := make([]string, 0, len(set))
	for _, role := range set.Sorted() {
		names = append(names, string(role))
	}

	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode permitted-roles cache entry: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+operation, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write permitted-roles cache: %w", err)
	}
	return nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, operation string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+operation).Err(); err != nil {
		return fmt.Errorf("failed to invalidate permitted-roles cache: %w", err)
	}
	c.metrics.CacheInvalidationsTotal.WithLabelValues("redis").Inc()
	return nil
}
