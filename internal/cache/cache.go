// Package cache provides a small TTL key-value cache used for availability
// snapshots. Two implementations exist: an in-process map for single-binary
// deployments and a Redis-backed one for multi-instance setups. Values are
// stored as JSON so both behave identically.
package cache

import (
	"context"
	"time"
)

// Cache is the contract shared by the in-memory and Redis implementations.
//
// Get unmarshals the cached value into dest and reports whether the key was
// present and unexpired. A miss is not an error; err is reserved for backend
// or decoding failures.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
