package middleware

// Responses depend on the current interval, so entries expire after a short
// TTL or when the response says it goes stale, whichever comes first.
// golang-lru bounds the number of distinct requests held.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/grpc"
)

// cacheBypasser is implemented by requests that must always reach the handler.
type cacheBypasser interface {
	SkipCache() bool
}

// cacheable is implemented by responses that may refuse to be cached.
type cacheable interface {
	Cacheable() bool
}

// expiring is implemented by responses that go stale at a known instant.
// A zero instant leaves the TTL alone.
type expiring interface {
	ExpiresAt(now time.Time) time.Time
}

type cacheEntry struct {
	resp    interface{}
	expires time.Time
}

// ResponseCache is a unary interceptor caching successful responses.
type ResponseCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewResponseCache sets up an in-memory LRU cache of size entries.
func NewResponseCache(size int, ttl time.Duration) (*ResponseCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

// Interceptor is a gRPC middleware for caching responses in memory.
func (c *ResponseCache) Interceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	if b, ok := req.(cacheBypasser); ok && b.SkipCache() {
		return handler(ctx, req)
	}

	key := generateCacheKey(info.FullMethod, req)
	if v, ok := c.cache.Get(key); ok {
		entry := v.(cacheEntry)
		if c.now().Before(entry.expires) {
			return entry.resp, nil
		}
		c.cache.Remove(key)
	}

	resp, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if cr, ok := resp.(cacheable); ok && !cr.Cacheable() {
		return resp, nil
	}

	now := c.now()
	expires := now.Add(c.ttl)
	if e, ok := resp.(expiring); ok {
		if at := e.ExpiresAt(now); !at.IsZero() && at.Before(expires) {
			expires = at
		}
	}
	c.cache.Add(key, cacheEntry{resp: resp, expires: expires})
	return resp, nil
}

// Len is the number of cached responses, expired ones included.
func (c *ResponseCache) Len() int {
	return c.cache.Len()
}

// generateCacheKey generates a cache key based on the gRPC method and request.
func generateCacheKey(method string, req interface{}) string {
	reqBytes, _ := json.Marshal(req)
	return fmt.Sprintf("%s:%s", method, string(reqBytes))
}
