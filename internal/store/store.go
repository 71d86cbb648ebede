// Package store abstracts the key-value store behind the AI governance
// counters. Production uses Redis; single-node deployments and tests use
// the in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist. Trackers treat
// a missing key as zero usage; any other error triggers their fail-open path.
var ErrNotFound = errors.New("store: key not found")

// Store is the counter surface the governance trackers need. All counters
// are independent keys; no cross-key transaction is provided or assumed.
type Store interface {
	// Get returns the raw string value, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes a value with a TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrBy atomically adds n and returns the new value.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// IncrByFloat atomically adds f and returns the new value.
	IncrByFloat(ctx context.Context, key string, f float64) (float64, error)
	// Expire sets the key's TTL, refreshing any existing one.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, or a negative duration when the
	// key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// LPush prepends a value to a list.
	LPush(ctx context.Context, key, value string) error
	// LTrim keeps only the list elements in [start, stop].
	LTrim(ctx context.Context, key string, start, stop int64) error
	// LRange returns the list elements in [start, stop].
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}
