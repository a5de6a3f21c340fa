package feedcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is used when the cache is shared between client processes on
// one host (kiosk and test rigs). A zero TTL keeps records forever.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	opts := &redis.Options{
		Addr: addr,
		DB:   db,
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts)
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}
