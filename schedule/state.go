package schedule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bluesky-social/herald/cachestore"
)

// Persists per-stream last-action timestamps, as unix milliseconds.
type StateStore struct {
	Cache cachestore.CacheStore
	// distinguishes agents sharing a cache, eg the account handle
	Namespace string
}

func (s *StateStore) key(stream string) string {
	return s.Namespace + "/" + stream
}

// Returns the zero time if the stream has never acted.
func (s *StateStore) LastAction(ctx context.Context, stream string) (time.Time, error) {
	raw, err := s.Cache.Get(ctx, "last-action", s.key(stream))
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last-action timestamp for %s: %w", stream, err)
	}
	return time.UnixMilli(ms), nil
}

func (s *StateStore) SetLastAction(ctx context.Context, stream string, t time.Time) error {
	return s.Cache.Set(ctx, "last-action", s.key(stream), strconv.FormatInt(t.UnixMilli(), 10), time.Time{})
}
