package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheMetrics receives hit/miss counts from the cached engine.
// Satisfied by observability.Metrics; nil-safe via the noop implementation.
type CacheMetrics interface {
	PermissionCacheHit()
	PermissionCacheMiss()
}

type noopCacheMetrics struct{}

func (noopCacheMetrics) PermissionCacheHit()  {}
func (noopCacheMetrics) PermissionCacheMiss() {}

type l1Entry struct {
	perms     []string
	expiresAt time.Time
}

// CachedEngine wraps a Calculator with a two-tier cache: an in-process LRU in
// front of Redis. Entries expire after the configured TTL; staleness inside
// that window is accepted because refresh always recomputes from the store.
type CachedEngine struct {
	inner   Calculator
	l1      *lru.Cache[string, l1Entry]
	redis   *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
	now     func() time.Time
}

// NewCachedEngine creates a caching decorator around an engine.
// redisClient may be nil, in which case only the L1 cache is used.
func NewCachedEngine(inner Calculator, redisClient *redis.Client, l1Size int, ttl time.Duration) (*CachedEngine, error) {
	if l1Size <= 0 {
		l1Size = 4096
	}
	l1, err := lru.New[string, l1Entry](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}
	return &CachedEngine{
		inner:   inner,
		l1:      l1,
		redis:   redisClient,
		ttl:     ttl,
		metrics: noopCacheMetrics{},
		now:     time.Now,
	}, nil
}

// SetMetrics attaches a metrics receiver
func (c *CachedEngine) SetMetrics(m CacheMetrics) {
	if m != nil {
		c.metrics = m
	}
}

func cacheKey(userID, orgID string) string {
	return fmt.Sprintf("perms:%s:%s", userID, orgID)
}

// Calculate returns the cached effective set when present, otherwise falls
// through to the wrapped engine and populates both tiers.
func (c *CachedEngine) Calculate(ctx context.Context, userID, orgID string) (Set, error) {
	key := cacheKey(userID, orgID)

	if entry, ok := c.l1.Get(key); ok && c.now().Before(entry.expiresAt) {
		c.metrics.PermissionCacheHit()
		return NewSet(entry.perms...), nil
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			var perms []string
			if jsonErr := json.Unmarshal([]byte(data), &perms); jsonErr == nil {
				c.metrics.PermissionCacheHit()
				c.l1.Add(key, l1Entry{perms: perms, expiresAt: c.now().Add(c.ttl)})
				return NewSet(perms...), nil
			}
			// Corrupt entry; drop it and recompute.
			c.redis.Del(ctx, key)
		} else if err != redis.Nil {
			// Redis being down must not block permission checks.
			set, innerErr := c.inner.Calculate(ctx, userID, orgID)
			if innerErr != nil {
				return nil, innerErr
			}
			c.metrics.PermissionCacheMiss()
			return set, nil
		}
	}

	c.metrics.PermissionCacheMiss()
	set, err := c.inner.Calculate(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	perms := set.List()
	c.l1.Add(key, l1Entry{perms: perms, expiresAt: c.now().Add(c.ttl)})
	if c.redis != nil {
		if data, err := json.Marshal(perms); err == nil {
			c.redis.Set(ctx, key, data, c.ttl)
		}
	}
	return set, nil
}

// Invalidate drops the cached set for one (user, tenant) pair
func (c *CachedEngine) Invalidate(ctx context.Context, userID, orgID string) error {
	key := cacheKey(userID, orgID)
	c.l1.Remove(key)
	if c.redis != nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
	}
	return nil
}
