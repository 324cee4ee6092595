package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type forcedRequest struct {
	ID    string
	Force bool
}

func (r forcedRequest) SkipCache() bool { return r.Force }

type verdictResponse struct {
	ok bool
}

func (r verdictResponse) Cacheable() bool { return r.ok }

type boundedResponse struct {
	until time.Time
}

func (r boundedResponse) ExpiresAt(time.Time) time.Time { return r.until }

// Mock handler to simulate gRPC handler behavior.
func countingHandler(calls *int) grpc.UnaryHandler {
	return func(ctx context.Context, req interface{}) (interface{}, error) {
		*calls++
		return "response-" + req.(string), nil
	}
}

func TestCachingInterceptor(t *testing.T) {
	c, err := NewResponseCache(2, time.Minute)
	require.NoError(t, err, "Failed to initialize cache")

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/Method",
	}
	calls := 0
	handler := countingHandler(&calls)

	// cache miss
	resp, err := c.Interceptor(ctx, "request1", info, handler)
	assert.NoError(t, err)
	assert.Equal(t, "response-request1", resp)

	// cache hit
	respCached, err := c.Interceptor(ctx, "request1", info, handler)
	assert.NoError(t, err)
	assert.Equal(t, resp, respCached)
	assert.Equal(t, 1, calls, "handler should not run on a cache hit")

	_, err = c.Interceptor(ctx, "request2", info, handler)
	assert.NoError(t, err)
	_, err = c.Interceptor(ctx, "request3", info, handler)
	assert.NoError(t, err)

	// The first request should have been evicted due to cache size.
	_, ok := c.cache.Get(generateCacheKey(info.FullMethod, "request1"))
	assert.False(t, ok, "Expected first request to be evicted from cache")
	assert.Equal(t, 2, c.Len())
}

func TestCachingInterceptorExpires(t *testing.T) {
	c, err := NewResponseCache(4, 30*time.Second)
	require.NoError(t, err)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	calls := 0
	handler := countingHandler(&calls)

	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	now = now.Add(29 * time.Second)
	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	assert.Equal(t, 1, calls)

	now = now.Add(time.Second)
	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	assert.Equal(t, 2, calls)
}

func TestCachingInterceptorStopsAtResponseExpiry(t *testing.T) {
	c, err := NewResponseCache(4, 30*time.Second)
	require.NoError(t, err)
	now := time.Date(2025, 1, 15, 10, 14, 50, 0, time.UTC)
	c.now = func() time.Time { return now }

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	boundary := time.Date(2025, 1, 15, 10, 15, 0, 0, time.UTC)
	calls := 0
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		calls++
		return boundedResponse{until: boundary}, nil
	}

	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	now = now.Add(9 * time.Second)
	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	assert.Equal(t, 1, calls)

	now = boundary
	_, _ = c.Interceptor(context.Background(), "req", info, handler)
	assert.Equal(t, 2, calls, "entry must not outlive the interval it was built in")
}

func TestCachingInterceptorBypass(t *testing.T) {
	c, err := NewResponseCache(4, time.Minute)
	require.NoError(t, err)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}

	calls := 0
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		calls++
		return verdictResponse{ok: req.(forcedRequest).ID != "failing"}, nil
	}

	tests := []struct {
		name      string
		req       forcedRequest
		wantCalls int
	}{
		{"forced requests skip the cache", forcedRequest{ID: "a", Force: true}, 2},
		{"uncacheable responses are not stored", forcedRequest{ID: "failing"}, 2},
		{"plain requests are cached", forcedRequest{ID: "a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			for i := 0; i < 2; i++ {
				_, err := c.Interceptor(context.Background(), tt.req, info, handler)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestNewResponseCacheInvalidSize(t *testing.T) {
	_, err := NewResponseCache(-1, time.Minute)
	assert.Error(t, err)
}
