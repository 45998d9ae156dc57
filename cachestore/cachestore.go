package cachestore

import (
	"context"
	"time"
)

type CacheStore interface {
	// Returns the empty string (and no error) if the key is absent or expired.
	Get(ctx context.Context, name, key string) (string, error)
	// A zero expiresAt persists the value indefinitely.
	Set(ctx context.Context, name, key, val string, expiresAt time.Time) error
	Purge(ctx context.Context, name, key string) error
}

// Returns the time-to-live for an absolute expiry, relative to now. Zero expiry maps to a negative duration, meaning "no expiry".
func ttlFor(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return -1
	}
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
