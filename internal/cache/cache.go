// Package cache provides the shared key-value store used for per-source
// throttling and at-most-once notification dedup. Callers treat failures as
// a degraded mode, never as a reason to abort a business operation.
package cache

import (
	"context"
	"time"
)

// Store is a key-value store with expiry.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr increments the counter at key and returns the new value. The TTL
	// is applied when the counter is first created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
