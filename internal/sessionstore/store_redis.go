package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"idmask/pkg/platform/sentinel"
)

// putScript writes the value and, only when the key is new, appends it to the
// order list. Both happen in one step so a value can never exist without its
// order entry.
//
// KEYS[1] value key, KEYS[2] order list; ARGV[1] value, ARGV[2] key.
var putScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('RPUSH', KEYS[2], ARGV[2])
	return 1
end
redis.call('SET', KEYS[1], ARGV[1])
return 0
`)

// sweepScript pops the oldest entries beyond the bound and deletes their
// values.
//
// KEYS[1] order list; ARGV[1] max size, ARGV[2] value key prefix.
var sweepScript = redis.NewScript(`
local excess = redis.call('LLEN', KEYS[1]) - tonumber(ARGV[1])
if excess <= 0 then
	return 0
end
local oldest = redis.call('LRANGE', KEYS[1], 0, excess - 1)
redis.call('LTRIM', KEYS[1], excess, -1)
for _, k in ipairs(oldest) do
	redis.call('DEL', ARGV[2] .. k)
end
return #oldest
`)

// RedisStore keeps values as JSON strings and insertion order in a Redis list,
// so every instance behind a load balancer sees the same sessions. Writes and
// sweeps run as Lua scripts, so the order list and the value keys never drift
// apart. Value keys are derived inside the sweep script, which assumes a
// single Redis node rather than a cluster.
//
// Keys:
//
//	<prefix>:<namespace>:v:<key>   JSON value
//	<prefix>:<namespace>:order     list of keys, oldest at the head
type RedisStore[V any] struct {
	client    *redis.Client
	namespace Namespace
	maxSize   int
	valuePfx  string
	orderKey  string
}

// NewRedisStore creates a Redis-backed store for one namespace.
func NewRedisStore[V any](client *redis.Client, keyPrefix string, namespace Namespace, maxSize int) *RedisStore[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	base := fmt.Sprintf("%s:%s", keyPrefix, namespace)
	return &RedisStore[V]{
		client:    client,
		namespace: namespace,
		maxSize:   maxSize,
		valuePfx:  base + ":v:",
		orderKey:  base + ":order",
	}
}

func (s *RedisStore[V]) valueKey(key string) string {
	return s.valuePfx + key
}

// Put inserts or overwrites key. Only the first write appends to the order list.
func (s *RedisStore[V]) Put(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s session: %w", s.namespace, err)
	}
	if err := putScript.Run(ctx, s.client, []string{s.valueKey(key), s.orderKey}, data, key).Err(); err != nil {
		return fmt.Errorf("put %s session: %w", s.namespace, err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, error) {
	var v V
	data, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, fmt.Errorf("%s session %s: %w", s.namespace, key, sentinel.ErrNotFound)
	}
	if err != nil {
		return v, fmt.Errorf("get %s session: %w", s.namespace, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s session: %w", s.namespace, err)
	}
	return v, nil
}

// Delete removes key and its order entry.
func (s *RedisStore[V]) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.valueKey(key))
		pipe.LRem(ctx, s.orderKey, 1, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s session: %w", s.namespace, err)
	}
	return nil
}

// Len returns the length of the order list.
func (s *RedisStore[V]) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.orderKey).Result()
	if err != nil {
		return 0, fmt.Errorf("len %s: %w", s.namespace, err)
	}
	return int(n), nil
}

// Sweep trims the oldest entries so at most maxSize remain.
func (s *RedisStore[V]) Sweep(ctx context.Context) (int, error) {
	n, err := sweepScript.Run(ctx, s.client, []string{s.orderKey}, s.maxSize, s.valuePfx).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", s.namespace, err)
	}
	return n, nil
}
