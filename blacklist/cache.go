package blacklist

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps cache backend failures.
var ErrUnavailable = errors.New("blacklist cache unavailable")

// Cache is a key/value store with per-entry TTL.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key and reports whether a live entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
}
