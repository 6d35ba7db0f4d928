// Package cache stores query results in Redis, encoded with msgpack.
package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// scanBatch is the COUNT hint of every SCAN round trip.
const scanBatch = 200

// Store is the subset of the go-redis client used by the cache.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Redis implements the client query cache. Every key is stored under
// "<namespace>:".
type Redis struct {
	store     Store
	namespace string
}

func NewRedis(store Store, namespace string) *Redis {
	return &Redis{store: store, namespace: namespace}
}

func (r *Redis) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

// Get decodes the value at key into dest. A missing key reports false.
func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.store.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := Decode(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key(key), raw, ttl).Err()
}

// DeletePrefix removes every key starting with prefix. Keys are collected
// with SCAN so large keyspaces do not block the server.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	match := escapeGlob(r.key(prefix)) + "*"
	var cursor uint64
	for {
		keys, next, err := r.store.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.store.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Encode serialises v with msgpack using the json struct tags, so cached
// entities keep their API field names.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(raw []byte, dest any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	return dec.Decode(dest)
}

func escapeGlob(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
