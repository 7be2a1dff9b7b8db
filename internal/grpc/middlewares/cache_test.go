package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestCachingInterceptor(t *testing.T) {
	// Initialize the cache with a size of 2.
	cache, err := NewResponseCache(2)
	require.NoError(t, err, "Failed to initialize cache")

	calls := 0
	mockHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		calls++
		return "response-" + req.(string), nil
	}

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/Method",
	}

	// cache miss
	resp, err := cache.Interceptor(ctx, "request1", info, mockHandler)
	assert.NoError(t, err, "Error in first request")
	assert.Equal(t, "response-request1", resp, "Unexpected response for first request")

	// cache hit
	respCached, err := cache.Interceptor(ctx, "request1", info, mockHandler)
	assert.NoError(t, err, "Error in cached request")
	assert.Equal(t, "response-request1", respCached, "Unexpected response for cached request")
	assert.Equal(t, 1, calls, "Handler should not run on a cache hit")

	// Fill the cache past its size
	_, err = cache.Interceptor(ctx, "request2", info, mockHandler)
	assert.NoError(t, err)
	_, err = cache.Interceptor(ctx, "request3", info, mockHandler)
	assert.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	// The first request should have been evicted due to cache size.
	_, err = cache.Interceptor(ctx, "request1", info, mockHandler)
	assert.NoError(t, err)
	assert.Equal(t, 4, calls, "Expected first request to be evicted from cache")

	cache.Purge()
	assert.Zero(t, cache.Len())
}

func TestCachingInterceptorSkipsErrors(t *testing.T) {
	cache, err := NewResponseCache(10)
	require.NoError(t, err)

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Internal, "boom")
	}

	_, err = cache.Interceptor(context.Background(), "request", info, failing)
	assert.Error(t, err)
	assert.Zero(t, cache.Len())
}

func TestGenerateCacheKeyProto(t *testing.T) {
	a, err := structpb.NewStruct(map[string]interface{}{
		"metering_point_id": "571313174100000001",
		"start":             "2024-01-01T00:00:00Z",
		"end":               "2024-01-02T00:00:00Z",
	})
	require.NoError(t, err)
	b, err := structpb.NewStruct(map[string]interface{}{
		"end":               "2024-01-02T00:00:00Z",
		"start":             "2024-01-01T00:00:00Z",
		"metering_point_id": "571313174100000001",
	})
	require.NoError(t, err)

	keyA, ok := generateCacheKey("/svc/Method", a)
	require.True(t, ok)
	keyB, ok := generateCacheKey("/svc/Method", b)
	require.True(t, ok)
	assert.Equal(t, keyA, keyB)

	keyOther, ok := generateCacheKey("/svc/Other", a)
	require.True(t, ok)
	assert.NotEqual(t, keyA, keyOther)
}
