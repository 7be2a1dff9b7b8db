package middleware

// Responses are cached in memory, keyed by method and request bytes.
// golang-lru evicts the least recently used entry once the cache is full.

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// ResponseCache holds successful responses until evicted or purged.
type ResponseCache struct {
	cache *lru.Cache
}

// NewResponseCache sets up an in-memory LRU cache holding size entries.
func NewResponseCache(size int) (*ResponseCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{cache: cache}, nil
}

// Purge drops every cached response. Call it after new data is stored.
func (c *ResponseCache) Purge() {
	c.cache.Purge()
}

func (c *ResponseCache) Len() int {
	return c.cache.Len()
}

// Interceptor is a gRPC middleware for caching responses in memory.
func (c *ResponseCache) Interceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	key, ok := generateCacheKey(info.FullMethod, req)
	if !ok {
		return handler(ctx, req)
	}

	if cachedResp, ok := c.cache.Get(key); ok {
		return cachedResp, nil
	}

	resp, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, resp)
	return resp, nil
}

// generateCacheKey serializes the request. Protobuf messages are marshalled
// deterministically so equal requests give equal keys.
func generateCacheKey(method string, req interface{}) (string, bool) {
	var (
		reqBytes []byte
		err      error
	)
	if msg, isProto := req.(proto.Message); isProto {
		reqBytes, err = proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	} else {
		reqBytes, err = json.Marshal(req)
	}
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s:%s", method, reqBytes), true
}
