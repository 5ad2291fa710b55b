package data

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
)

// Cache key prefixes and defaults.
const (
	// CacheKeyResponse is the prefix for shared response caches: ai_response:{fingerprint}
	CacheKeyResponse = "ai_response"

	DefaultResponseCacheSize = 512
	DefaultResponseCacheTTL  = 10 * time.Minute
)

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyResponse, "ab12") -> "ai_response:ab12"
//   - BuildCacheKey(CacheKeyUsage, "user", "u1", "2026-10") -> "ai_usage:user:u1:2026-10"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// CacheStats is a point-in-time view of the response cache.
type CacheStats struct {
	Size      int64 `json:"size"`
	MaxSize   int64 `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// ResponseCache implements biz.ResponseCache with an in-process expiring
// LRU in front of an optional Redis tier shared between replicas.
// Redis failures degrade to the local tier only.
type ResponseCache struct {
	local   *expirable.LRU[string, *biz.CachedResponse]
	rdb     *redis.Client
	ttl     time.Duration
	maxSize int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	logger *log.Helper
}

// NewResponseCache creates the response cache from configuration. rdb may be nil.
func NewResponseCache(c *conf.AI, rdb *redis.Client, logger log.Logger) *ResponseCache {
	size, ttl := DefaultResponseCacheSize, DefaultResponseCacheTTL
	if c != nil && c.Cache != nil {
		if c.Cache.Size > 0 {
			size = c.Cache.Size
		}
		if d := c.Cache.TTL.AsDuration(); d > 0 {
			ttl = d
		}
	}

	rc := &ResponseCache{
		rdb:     rdb,
		ttl:     ttl,
		maxSize: size,
		logger:  log.NewHelper(logger),
	}
	rc.local = expirable.NewLRU[string, *biz.CachedResponse](size, func(string, *biz.CachedResponse) {
		rc.evictions.Add(1)
	}, ttl)
	return rc
}

var _ biz.ResponseCache = (*ResponseCache)(nil)

// Get looks up the local tier, then Redis. A Redis hit is copied into the
// local tier.
func (c *ResponseCache) Get(ctx context.Context, key string) (*biz.CachedResponse, bool) {
	if v, ok := c.local.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}

	if c.rdb != nil {
		v, err := c.getShared(ctx, key)
		switch {
		case err == nil:
			c.local.Add(key, v)
			c.hits.Add(1)
			return v, true
		case !errors.Is(err, ErrCacheNotFound):
			c.logger.Warnw("msg", "shared response cache read failed", "error", err)
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores the response in both tiers.
func (c *ResponseCache) Set(ctx context.Context, key string, resp *biz.CachedResponse) {
	if resp == nil {
		return
	}
	c.local.Add(key, resp)

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Errorw("msg", "failed to marshal cached response", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, BuildCacheKey(CacheKeyResponse, key), data, c.ttl).Err(); err != nil {
		c.logger.Warnw("msg", "shared response cache write failed", "error", err)
	}
}

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

func (c *ResponseCache) getShared(ctx context.Context, key string) (*biz.CachedResponse, error) {
	val, err := c.rdb.Get(ctx, BuildCacheKey(CacheKeyResponse, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheNotFound
		}
		return nil, err
	}

	var resp biz.CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Purge empties the local tier.
func (c *ResponseCache) Purge() {
	c.local.Purge()
}

// Stats returns hit/miss counters and the local tier occupancy.
func (c *ResponseCache) Stats() CacheStats {
	return CacheStats{
		Size:      int64(c.local.Len()),
		MaxSize:   int64(c.maxSize),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
