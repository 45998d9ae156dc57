package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisCacheStore struct {
	Data  *cache.Cache
	Redis *redis.Client
	// Prefix is prepended to every key; lets several agents share one redis instance.
	Prefix string
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(redisURL, prefix string) (*RedisCacheStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	// NOTE: no local (in-process) cache layer: values like timestamps must always reflect the authoritative copy
	data := cache.New(&cache.Options{
		Redis: rdb,
	})
	return &RedisCacheStore{
		Data:   data,
		Redis:  rdb,
		Prefix: prefix,
	}, nil
}

func (s *RedisCacheStore) redisKey(name, key string) string {
	return s.Prefix + "cache/" + name + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, s.redisKey(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key, val string, expiresAt time.Time) error {
	if expiresAt.IsZero() {
		// cache.Item treats a negative TTL as "don't store" and zero as an hour, so persistent values bypass it
		b, err := s.Data.Marshal(val)
		if err != nil {
			return err
		}
		return s.Redis.Set(ctx, s.redisKey(name, key), b, 0).Err()
	}
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   s.redisKey(name, key),
		Value: val,
		TTL:   ttlFor(expiresAt, time.Now()),
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, s.redisKey(name, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
