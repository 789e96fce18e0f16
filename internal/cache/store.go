// Package cache memoizes pipeline responses per (question, database) with a TTL.
package cache

import (
	"context"
	"time"
)

// Store is a key/value backend with time-based expiry. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value and true, or false when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PurgeExpired drops entries whose TTL has passed.
	PurgeExpired(ctx context.Context) (int, error)
}
