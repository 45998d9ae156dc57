package cachestore

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	val       string
	expiresAt time.Time
}

// In-process implementation, with LRU eviction once capacity is reached. Values do not survive a restart.
type MemCacheStore struct {
	Data *lru.Cache[string, memEntry]
	// overridable for tests
	now func() time.Time
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int) *MemCacheStore {
	data, err := lru.New[string, memEntry](capacity)
	if err != nil {
		// only fails on non-positive size
		panic(err)
	}
	return &MemCacheStore{
		Data: data,
		now:  time.Now,
	}
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	k := name + "/" + key
	ent, ok := s.Data.Get(k)
	if !ok {
		return "", nil
	}
	if !ent.expiresAt.IsZero() && !s.now().Before(ent.expiresAt) {
		s.Data.Remove(k)
		return "", nil
	}
	return ent.val, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key, val string, expiresAt time.Time) error {
	s.Data.Add(name+"/"+key, memEntry{val: val, expiresAt: expiresAt})
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.Data.Remove(name + "/" + key)
	return nil
}
