package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix    = "idem"
	idempotencyHeader  = "Idempotency-Key"
	pendingMarker      = "pending"
	maxIdempotencySize = 200
)

// StoredResponse is the response replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// RedisDeduper stores idempotency keys and their responses in Redis so all
// instances answer a retried request the same way.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID int64, key string) string {
	return fmt.Sprintf("%d:%s:%s", userID, dedupeKeyPrefix, key)
}

// Claim records key as in flight. A completed key yields its stored response.
func (r *RedisDeduper) Claim(ctx context.Context, userID int64, key string) (bool, *StoredResponse, error) {
	k := r.key(userID, key)
	added, err := r.client.SetNX(ctx, k, pendingMarker, r.ttl).Result()
	if err != nil || added {
		return added, nil, err
	}
	raw, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return r.Claim(ctx, userID, key)
	}
	if err != nil {
		return false, nil, err
	}
	if raw == pendingMarker {
		return false, nil, nil
	}
	var stored StoredResponse
	if err := sonic.UnmarshalString(raw, &stored); err != nil {
		return false, nil, err
	}
	return false, &stored, nil
}

// Complete replaces the in-flight marker with the final response.
func (r *RedisDeduper) Complete(ctx context.Context, userID int64, key string, resp StoredResponse) error {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID, key), data, r.ttl).Err()
}

// Release deletes a claim so the caller may retry after a failure.
func (r *RedisDeduper) Release(ctx context.Context, userID int64, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
